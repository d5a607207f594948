// Package service implements token issuance, redemption, and account linking
// on top of the repository and the QR signer.
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
)

// LockSpec carries the caller's lock overrides. Nil fields fall back to the
// referenced preset; non-nil fields replace the preset value wholesale
// (shallow override, array contents are never merged).
type LockSpec struct {
	Kind              *model.LockKind
	DurationMinutes   *int
	AllowedApps       []string
	BlockedApps       []string
	BlockedCategories []string
}

// ScheduleSpec is an optional recurring time window for a token.
type ScheduleSpec struct {
	Start string
	End   string
	Days  []string
}

// IssueRequest is the validated input for a stateful token.
type IssueRequest struct {
	Purpose    model.TokenPurpose
	TargetType *string
	TargetID   *string
	PresetID   *string
	Lock       *LockSpec
	Schedule   *ScheduleSpec
	MaxUses    *int
}

// IssuedToken is what the caller embeds into a QR image. The server never
// renders the image itself.
type IssuedToken struct {
	QRID    string
	Exp     int64
	Sig     string
	Payload string
}

type Issuer struct {
	repo    repository.Querier
	txr     repository.TxRunner
	signer  *qrsign.Signer
	ids     IDGenerator
	now     func() time.Time
	lockTTL time.Duration
	linkTTL time.Duration
	logger  *zap.Logger
}

func NewIssuer(repo repository.Querier, txr repository.TxRunner, signer *qrsign.Signer, ids IDGenerator, lockTTL, linkTTL time.Duration, logger *zap.Logger) *Issuer {
	return &Issuer{
		repo:    repo,
		txr:     txr,
		signer:  signer,
		ids:     ids,
		now:     func() time.Time { return time.Now().UTC() },
		lockTTL: lockTTL,
		linkTTL: linkTTL,
		logger:  logger,
	}
}

// WithClock overrides the clock, for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// IssuePolicyToken materializes a lock policy (when lock fields are present)
// and one ACTIVE token row, then signs "{qr_id}:{exp}". The TTL is a property
// of the token kind, never caller-supplied.
func (i *Issuer) IssuePolicyToken(ctx context.Context, requesterID string, req IssueRequest) (IssuedToken, error) {
	if requesterID == "" {
		return IssuedToken{}, errs.ErrUnauthenticated
	}

	spec, presetID, err := i.resolveLockSpec(ctx, requesterID, req)
	if err != nil {
		return IssuedToken{}, err
	}

	now := i.now()
	exp := now.Add(i.lockTTL)
	qrID := i.ids.NewID()

	token := model.QRToken{
		ID:         qrID,
		Purpose:    req.Purpose,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		MaxUses:    req.MaxUses,
		Status:     model.TokenActive,
		CreatedBy:  requesterID,
		ExpiresAt:  exp,
		CreatedAt:  now,
	}
	if req.Schedule != nil {
		token.WindowStart = &req.Schedule.Start
		token.WindowEnd = &req.Schedule.End
		token.WindowDays = req.Schedule.Days
	}

	err = i.txr.InTx(ctx, func(q repository.Querier) error {
		if spec != nil {
			policy := model.LockPolicy{
				ID:                i.ids.NewID(),
				Kind:              spec.kind,
				DurationMinutes:   spec.durationMinutes,
				AllowedApps:       spec.allowedApps,
				BlockedApps:       spec.blockedApps,
				BlockedCategories: spec.blockedCategories,
				CreatedBy:         &requesterID,
				PresetID:          presetID,
				CreatedAt:         now,
			}
			if req.Schedule != nil {
				policy.WindowStart = &req.Schedule.Start
				policy.WindowEnd = &req.Schedule.End
				policy.WindowDays = req.Schedule.Days
			}
			if err := q.CreateLockPolicy(ctx, policy); err != nil {
				return err
			}
			token.LockPolicyID = &policy.ID
		}
		return q.CreateQRToken(ctx, token)
	})
	if err != nil {
		return IssuedToken{}, err
	}

	sig := i.signer.SignStateful(qrID, exp.Unix())
	payload, err := json.Marshal(qrsign.StatefulPayload{QRID: qrID, Exp: exp.Unix(), Sig: sig})
	if err != nil {
		return IssuedToken{}, err
	}
	i.logger.Info("issued qr token",
		zap.String("qr_id", qrID),
		zap.String("purpose", string(req.Purpose)),
		zap.Int64("exp", exp.Unix()),
	)
	return IssuedToken{QRID: qrID, Exp: exp.Unix(), Sig: sig, Payload: string(payload)}, nil
}

// LinkRequest is the validated input for a stateless registration/link token.
type LinkRequest struct {
	Kind      qrsign.LinkKind
	ChildName string
	BirthYear int
	Phone     string
}

// IssueLinkToken builds and signs a fully self-contained payload. No row is
// written: the redeemer may not exist in the system yet, so everything needed
// to complete the redemption travels inside the token.
func (i *Issuer) IssueLinkToken(ctx context.Context, requesterID string, req LinkRequest) (qrsign.LinkPayload, string, error) {
	if requesterID == "" {
		return qrsign.LinkPayload{}, "", errs.ErrUnauthenticated
	}
	requester, err := i.repo.GetUserByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return qrsign.LinkPayload{}, "", errs.ErrNotFound
		}
		return qrsign.LinkPayload{}, "", err
	}
	if !requester.ProfileComplete() {
		return qrsign.LinkPayload{}, "", fmt.Errorf("%w: profile incomplete", errs.ErrUnauthenticated)
	}

	payload := qrsign.LinkPayload{
		Type:       req.Kind,
		IssuerID:   requester.ID,
		IssuerName: *requester.Name,
		ChildName:  req.ChildName,
		BirthYear:  req.BirthYear,
		Phone:      req.Phone,
		QRID:       i.ids.NewID(),
		Exp:        i.now().Add(i.linkTTL).Unix(),
	}
	signed, err := i.signer.SignLink(payload)
	if err != nil {
		return qrsign.LinkPayload{}, "", err
	}
	raw, err := json.Marshal(signed)
	if err != nil {
		return qrsign.LinkPayload{}, "", err
	}
	i.logger.Info("issued link token",
		zap.String("qr_id", signed.QRID),
		zap.String("kind", string(req.Kind)),
	)
	return signed, string(raw), nil
}

type resolvedLockSpec struct {
	kind              model.LockKind
	durationMinutes   int
	allowedApps       []string
	blockedApps       []string
	blockedCategories []string
}

// resolveLockSpec merges preset defaults with caller overrides, field by
// field. Returns nil when the request carries no lock fields at all
// (attendance-only tokens).
func (i *Issuer) resolveLockSpec(ctx context.Context, requesterID string, req IssueRequest) (*resolvedLockSpec, *string, error) {
	if req.Lock == nil && req.PresetID == nil {
		return nil, nil, nil
	}

	spec := resolvedLockSpec{kind: model.LockKindFull}
	var presetID *string
	if req.PresetID != nil {
		preset, err := i.repo.GetPreset(ctx, *req.PresetID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil, fmt.Errorf("%w: preset %s", errs.ErrNotFound, *req.PresetID)
			}
			return nil, nil, err
		}
		if preset.OwnerID != requesterID {
			return nil, nil, fmt.Errorf("%w: preset %s", errs.ErrNotFound, *req.PresetID)
		}
		spec = resolvedLockSpec{
			kind:              preset.Kind,
			durationMinutes:   preset.DurationMinutes,
			allowedApps:       preset.AllowedApps,
			blockedApps:       preset.BlockedApps,
			blockedCategories: preset.BlockedCategories,
		}
		presetID = &preset.ID
	}
	if req.Lock != nil {
		if req.Lock.Kind != nil {
			spec.kind = *req.Lock.Kind
		}
		if req.Lock.DurationMinutes != nil {
			spec.durationMinutes = *req.Lock.DurationMinutes
		}
		if req.Lock.AllowedApps != nil {
			spec.allowedApps = req.Lock.AllowedApps
		}
		if req.Lock.BlockedApps != nil {
			spec.blockedApps = req.Lock.BlockedApps
		}
		if req.Lock.BlockedCategories != nil {
			spec.blockedCategories = req.Lock.BlockedCategories
		}
	}
	return &spec, presetID, nil
}
