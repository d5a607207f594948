package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ohwonsuk/lockmoment-sub001/internal/errs"
	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
	"github.com/ohwonsuk/lockmoment-sub001/internal/qrsign"
	"github.com/ohwonsuk/lockmoment-sub001/internal/repository"
	"github.com/ohwonsuk/lockmoment-sub001/internal/schedule"
)

// PolicyResult is the lock policy handed back to a scanning device.
// Attendance-only tokens return no policy payload.
type PolicyResult struct {
	Kind              model.LockKind `json:"kind"`
	DurationMinutes   int            `json:"durationMinutes"`
	AllowedApps       []string       `json:"allowedApps,omitempty"`
	BlockedApps       []string       `json:"blockedApps,omitempty"`
	BlockedCategories []string       `json:"blockedCategories,omitempty"`
	WindowStart       *string        `json:"windowStart,omitempty"`
	WindowEnd         *string        `json:"windowEnd,omitempty"`
	WindowDays        []string       `json:"windowDays,omitempty"`
}

// ScanResult is the outcome of a successful redemption: either a resolved
// policy (stateful tokens) or a link result (stateless tokens).
type ScanResult struct {
	Purpose      model.TokenPurpose
	LockPolicy   *PolicyResult
	Registration *LinkResult
}

// ScanCache is the optional redis surface used around redemption: a
// per-(token, device) lock and a resolved-policy cache. *cache.Cache
// satisfies it.
type ScanCache interface {
	AcquireScanLock(ctx context.Context, tokenID, deviceID string) (bool, error)
	ReleaseScanLock(ctx context.Context, tokenID, deviceID string)
	StorePolicy(ctx context.Context, qrID string, payload []byte, ttl time.Duration)
	LoadPolicy(ctx context.Context, qrID string) ([]byte, bool)
}

// Scanner is the redemption entry point. It parses the scanned payload,
// determines its kind, checks authenticity and freshness, applies window and
// use-limit rules, and resolves either a policy or an account link.
type Scanner struct {
	repo   repository.Querier
	txr    repository.TxRunner
	signer *qrsign.Signer
	linker *Linker
	cache  ScanCache
	loc    *time.Location
	ids    IDGenerator
	now    func() time.Time
	logger *zap.Logger
}

func NewScanner(repo repository.Querier, txr repository.TxRunner, signer *qrsign.Signer, linker *Linker, c ScanCache, loc *time.Location, ids IDGenerator, logger *zap.Logger) *Scanner {
	return &Scanner{
		repo:   repo,
		txr:    txr,
		signer: signer,
		linker: linker,
		cache:  c,
		loc:    loc,
		ids:    ids,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// WithClock overrides the clock, for tests.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Scan redeems a raw QR payload scanned by deviceIdentifier. authedUserID is
// nil for unauthenticated scanners.
func (s *Scanner) Scan(ctx context.Context, authedUserID *string, rawPayload, deviceIdentifier string) (ScanResult, error) {
	var probe struct {
		Type qrsign.LinkKind `json:"type"`
	}
	if err := json.Unmarshal([]byte(rawPayload), &probe); err != nil {
		return ScanResult{}, fmt.Errorf("%w: not valid JSON", errs.ErrMalformedPayload)
	}

	switch probe.Type {
	case qrsign.KindChildRegistration, qrsign.KindParentLink:
		return s.scanLink(ctx, authedUserID, rawPayload, deviceIdentifier)
	case "":
		return s.scanStateful(ctx, authedUserID, rawPayload, deviceIdentifier)
	default:
		return ScanResult{}, fmt.Errorf("%w: unknown type %q", errs.ErrMalformedPayload, probe.Type)
	}
}

func (s *Scanner) scanLink(ctx context.Context, authedUserID *string, rawPayload, deviceIdentifier string) (ScanResult, error) {
	var payload qrsign.LinkPayload
	if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil {
		return ScanResult{}, fmt.Errorf("%w: not valid JSON", errs.ErrMalformedPayload)
	}
	if payload.QRID == "" || payload.IssuerID == "" || payload.Sig == "" {
		return ScanResult{}, fmt.Errorf("%w: missing required fields", errs.ErrMalformedPayload)
	}
	if !s.signer.VerifyLink(payload) {
		return ScanResult{}, fmt.Errorf("%w: tampered", errs.ErrInvalidSignature)
	}
	if payload.Exp < s.now().Unix() {
		return ScanResult{}, errs.ErrExpired
	}

	result, err := s.linker.ResolveLink(ctx, authedUserID, payload, deviceIdentifier)
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{Registration: &result}, nil
}

func (s *Scanner) scanStateful(ctx context.Context, authedUserID *string, rawPayload, deviceIdentifier string) (ScanResult, error) {
	var payload qrsign.StatefulPayload
	if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil {
		return ScanResult{}, fmt.Errorf("%w: not valid JSON", errs.ErrMalformedPayload)
	}
	if payload.QRID == "" || payload.Sig == "" {
		return ScanResult{}, fmt.Errorf("%w: missing required fields", errs.ErrMalformedPayload)
	}
	if !s.signer.VerifyStateful(payload.QRID, payload.Exp, payload.Sig) {
		return ScanResult{}, fmt.Errorf("%w: tampered", errs.ErrInvalidSignature)
	}
	// exp == now is still valid; only strictly-past tokens fail.
	if payload.Exp < s.now().Unix() {
		return ScanResult{}, errs.ErrExpired
	}

	// The redis lock guards only limited-use tokens; unlimited tokens have
	// no race worth serializing, so a concurrent scan must never fail here.
	peek, err := s.repo.GetQRToken(ctx, payload.QRID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScanResult{}, fmt.Errorf("%w: unknown token", errs.ErrNotFound)
		}
		return ScanResult{}, err
	}
	if peek.MaxUses != nil && s.cache != nil {
		locked, err := s.cache.AcquireScanLock(ctx, payload.QRID, deviceIdentifier)
		switch {
		case err != nil:
			s.logger.Warn("scan lock unavailable", zap.Error(err))
		case !locked:
			return ScanResult{}, fmt.Errorf("%w: scan already in progress", errs.ErrAlreadyExists)
		default:
			defer s.cache.ReleaseScanLock(ctx, payload.QRID, deviceIdentifier)
		}
	}

	var (
		token  model.QRToken
		policy *model.LockPolicy
		cached *PolicyResult
	)
	err = s.txr.InTx(ctx, func(q repository.Querier) error {
		var err error
		token, err = q.GetQRTokenForUpdate(ctx, payload.QRID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: unknown token", errs.ErrNotFound)
			}
			return err
		}
		if token.Status != model.TokenActive {
			return fmt.Errorf("%w: token not active", errs.ErrNotFound)
		}

		if token.WindowStart != nil && token.WindowEnd != nil {
			res := schedule.IsWithin(s.now().In(s.loc), *token.WindowStart, *token.WindowEnd, token.WindowDays)
			if !res.Valid {
				return &errs.ScheduleError{Reason: res.Reason}
			}
		}

		if token.MaxUses != nil {
			used, err := q.CountUsage(ctx, token.ID)
			if err != nil {
				return err
			}
			if used >= *token.MaxUses {
				return errs.ErrUseLimitExceeded
			}
		}

		device, err := q.GetDeviceByIdentifier(ctx, deviceIdentifier)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: unknown device", errs.ErrNotFound)
			}
			return err
		}

		if hasAttendance(token.Purpose) && token.TargetID != nil {
			record := model.AttendanceRecord{
				QRTokenID: token.ID,
				SessionID: *token.TargetID,
				StudentID: device.UserID,
				DeviceID:  device.ID,
				Status:    "present",
				CheckedAt: s.now(),
			}
			if err := q.UpsertAttendance(ctx, record); err != nil {
				return err
			}
		}

		// Device usage is always appended for auditing and limit counting,
		// independent of the attendance upsert.
		usage := model.UsageRecord{
			ID:        s.ids.NewID(),
			QRTokenID: token.ID,
			DeviceID:  device.ID,
			UsedAt:    s.now(),
		}
		if authedUserID != nil {
			usage.UserID = authedUserID
		} else {
			owner := device.UserID
			usage.UserID = &owner
		}
		if err := q.InsertUsageRecord(ctx, usage); err != nil {
			return err
		}

		if hasLock(token.Purpose) && token.LockPolicyID != nil {
			// Policies are immutable, so a cached resolution is as good as
			// the row.
			if s.cache != nil {
				if data, ok := s.cache.LoadPolicy(ctx, token.ID); ok {
					var fromCache PolicyResult
					if json.Unmarshal(data, &fromCache) == nil {
						cached = &fromCache
						return nil
					}
				}
			}
			loaded, err := q.GetLockPolicy(ctx, *token.LockPolicyID)
			if err != nil {
				return err
			}
			policy = &loaded
		}
		return nil
	})
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{Purpose: token.Purpose}
	if cached != nil {
		result.LockPolicy = cached
	} else if policy != nil {
		result.LockPolicy = &PolicyResult{
			Kind:              policy.Kind,
			DurationMinutes:   policy.DurationMinutes,
			AllowedApps:       policy.AllowedApps,
			BlockedApps:       policy.BlockedApps,
			BlockedCategories: policy.BlockedCategories,
			WindowStart:       policy.WindowStart,
			WindowEnd:         policy.WindowEnd,
			WindowDays:        policy.WindowDays,
		}
		if data, err := json.Marshal(result.LockPolicy); err == nil && s.cache != nil {
			s.cache.StorePolicy(ctx, token.ID, data, time.Until(token.ExpiresAt))
		}
	}
	s.logger.Info("redeemed qr token",
		zap.String("qr_id", token.ID),
		zap.String("purpose", string(token.Purpose)),
	)
	return result, nil
}

func hasLock(p model.TokenPurpose) bool {
	return p == model.PurposeDeviceLock || p == model.PurposeLockAttend
}

func hasAttendance(p model.TokenPurpose) bool {
	return p == model.PurposeAttendance || p == model.PurposeLockAttend
}
