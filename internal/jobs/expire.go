// Package jobs holds background loops started alongside the HTTP server.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ohwonsuk/lockmoment-sub001/internal/config"
	"github.com/ohwonsuk/lockmoment-sub001/internal/repository"
)

// StartExpireJob periodically flips ACTIVE tokens past their expiry to
// EXPIRED. Expiry is already enforced at scan time via the signed exp, so the
// job only keeps row state and listings honest.
func StartExpireJob(ctx context.Context, cfg config.Config, repo repository.Querier, logger *zap.Logger) {
	if !cfg.ExpireJobEnabled {
		return
	}
	interval := cfg.ExpireJobInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.ExpireJobTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				expired, err := repo.ExpireTokens(tickCtx, time.Now().UTC())
				cancel()
				if err != nil {
					logger.Warn("expire job error", zap.Error(err))
					continue
				}
				if expired > 0 {
					logger.Info("expired qr tokens", zap.Int64("count", expired))
				}
			}
		}
	}()
}
