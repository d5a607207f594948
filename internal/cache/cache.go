// Package cache holds the optional redis helpers used around redemption:
// a short-lived per-token scan lock and a resolved-policy cache. A nil
// *Cache degrades every call to a no-op so the service runs DB-only.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client      *redis.Client
	scanLockTTL time.Duration
}

func New(client *redis.Client, scanLockTTL time.Duration) *Cache {
	return &Cache{client: client, scanLockTTL: scanLockTTL}
}

// AcquireScanLock takes a best-effort lock for one (token, device) redemption.
// The database transaction stays the correctness mechanism; the lock only
// short-circuits doomed concurrent scans.
func (c *Cache) AcquireScanLock(ctx context.Context, tokenID, deviceID string) (bool, error) {
	if c == nil || c.client == nil {
		return true, nil
	}
	return c.client.SetNX(ctx, scanLockKey(tokenID, deviceID), "1", c.scanLockTTL).Result()
}

func (c *Cache) ReleaseScanLock(ctx context.Context, tokenID, deviceID string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, scanLockKey(tokenID, deviceID)).Err()
}

// StorePolicy caches a resolved policy payload until the token expires.
func (c *Cache) StorePolicy(ctx context.Context, qrID string, payload []byte, ttl time.Duration) {
	if c == nil || c.client == nil || ttl <= 0 {
		return
	}
	_ = c.client.Set(ctx, policyKey(qrID), payload, ttl).Err()
}

func (c *Cache) LoadPolicy(ctx context.Context, qrID string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	value, err := c.client.Get(ctx, policyKey(qrID)).Bytes()
	if err == redis.Nil || err != nil {
		return nil, false
	}
	return value, true
}

func scanLockKey(tokenID, deviceID string) string {
	return fmt.Sprintf("scan_lock:%s:%s", tokenID, deviceID)
}

func policyKey(qrID string) string {
	return fmt.Sprintf("qr_policy:%s", qrID)
}
