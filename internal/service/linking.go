package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ohwonsuk/lockmoment-sub001/internal/errs"
	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
	"github.com/ohwonsuk/lockmoment-sub001/internal/qrsign"
	"github.com/ohwonsuk/lockmoment-sub001/internal/repository"
)

// LinkResult is returned to the scanner after a registration/link payload is
// resolved. Session tokens are present only when the scanner was
// unauthenticated and a principal was resolved for it.
type LinkResult struct {
	UserID      string         `json:"userId"`
	Kind        string         `json:"kind"`
	Transferred bool           `json:"transferred"`
	Session     *SessionTokens `json:"session,omitempty"`
}

// Linker performs idempotent account creation, merge, and device-ownership
// transfer for validated registration/link payloads.
type Linker struct {
	txr      repository.TxRunner
	sessions *SessionMinter
	ids      IDGenerator
	now      func() time.Time
	logger   *zap.Logger
}

func NewLinker(txr repository.TxRunner, sessions *SessionMinter, ids IDGenerator, logger *zap.Logger) *Linker {
	return &Linker{
		txr:      txr,
		sessions: sessions,
		ids:      ids,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// ResolveLink dispatches on the payload kind. The payload must already be
// signature- and expiry-verified by the scan path.
func (l *Linker) ResolveLink(ctx context.Context, authedUserID *string, payload qrsign.LinkPayload, deviceUUID string) (LinkResult, error) {
	switch payload.Type {
	case qrsign.KindChildRegistration:
		return l.resolveChildRegistration(ctx, authedUserID, payload, deviceUUID)
	case qrsign.KindParentLink:
		return l.resolveParentLink(ctx, authedUserID, payload)
	default:
		return LinkResult{}, errs.ErrMalformedPayload
	}
}

// resolveChildRegistration may run fully unauthenticated: a brand-new child
// device scans the parent's QR before any account exists. Redeeming the same
// token from two never-before-seen devices must converge on one child
// principal via the nickname-keyed transfer path.
func (l *Linker) resolveChildRegistration(ctx context.Context, authedUserID *string, payload qrsign.LinkPayload, deviceUUID string) (LinkResult, error) {
	nickname := payload.ChildName
	if nickname == "" {
		nickname = payload.IssuerName
	}

	var (
		result  LinkResult
		mintFor string
	)
	err := l.txr.InTx(ctx, func(q repository.Querier) error {
		now := l.now()

		childID, scannedDeviceID, created, err := l.resolveChildPrincipal(ctx, q, authedUserID, deviceUUID, now)
		if err != nil {
			return err
		}

		existing, err := q.GetRelationByNickname(ctx, payload.IssuerID, nickname)
		switch {
		case err == nil && existing.ChildID != childID:
			// Re-registration: the (parent, nickname) pair already has a
			// child principal. Repoint the scanned device to it, deactivate
			// the devices it replaces, and hand the scanner the existing
			// principal's identity.
			if scannedDeviceID != "" {
				devices, err := q.ListDevicesByUser(ctx, existing.ChildID)
				if err != nil {
					return err
				}
				for _, d := range devices {
					if d.Active && d.ID != scannedDeviceID {
						if err := q.DeactivateDevice(ctx, d.ID, now); err != nil {
							return err
						}
					}
				}
				if err := q.UpdateDeviceOwner(ctx, scannedDeviceID, existing.ChildID, now); err != nil {
					return err
				}
			}
			result = LinkResult{UserID: existing.ChildID, Kind: string(payload.Type), Transferred: true}
			mintFor = existing.ChildID
			if authedUserID != nil {
				mintFor = ""
			}
			return nil
		case err == nil:
			// Same child re-scanning its own token; nothing to link.
			result = LinkResult{UserID: childID, Kind: string(payload.Type)}
			if created {
				mintFor = childID
			}
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		rel := model.ParentChildRelation{
			ParentID:  payload.IssuerID,
			ChildID:   childID,
			Nickname:  &nickname,
			CreatedAt: now,
		}
		if err := q.CreateRelation(ctx, rel); err != nil {
			return err
		}
		if err := q.UpsertRole(ctx, model.RoleAssignment{UserID: childID, Role: "child"}); err != nil {
			return err
		}

		var birthYear *int
		if payload.BirthYear != 0 {
			birthYear = &payload.BirthYear
		}
		var phone *string
		if payload.Phone != "" {
			phone = &payload.Phone
		}
		if birthYear != nil || phone != nil {
			if err := q.BackfillChildInfo(ctx, childID, birthYear, phone, now); err != nil {
				return err
			}
		}

		result = LinkResult{UserID: childID, Kind: string(payload.Type)}
		if created {
			mintFor = childID
		}
		return nil
	})
	if err != nil {
		return LinkResult{}, err
	}

	if mintFor != "" {
		session, err := l.sessions.Mint(mintFor, "child")
		if err != nil {
			return LinkResult{}, err
		}
		result.Session = &session
	}
	l.logger.Info("resolved child registration",
		zap.String("parent_id", payload.IssuerID),
		zap.String("child_id", result.UserID),
		zap.Bool("transferred", result.Transferred),
	)
	return result, nil
}

// resolveChildPrincipal finds or creates the principal behind the scanning
// device. Returns the principal id, the scanned device row id (if any), and
// whether a fresh anonymous principal was created.
func (l *Linker) resolveChildPrincipal(ctx context.Context, q repository.Querier, authedUserID *string, deviceUUID string, now time.Time) (string, string, bool, error) {
	if authedUserID != nil {
		return *authedUserID, "", false, nil
	}
	if deviceUUID == "" {
		return "", "", false, errs.ErrMalformedPayload
	}

	device, err := q.GetDeviceByIdentifier(ctx, deviceUUID)
	if err == nil {
		return device.UserID, device.ID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, err
	}

	// Never-before-seen device: bootstrap an anonymous principal for it.
	// This is the only path where scanning yields new credentials.
	child := model.User{
		ID:        l.ids.NewID(),
		Provider:  model.ProviderAnonymous,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.CreateUser(ctx, child); err != nil {
		return "", "", false, err
	}
	created := model.Device{
		ID:          l.ids.NewID(),
		UserID:      child.ID,
		DeviceUUID:  deviceUUID,
		Permissions: map[string]string{},
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.CreateDevice(ctx, created); err != nil {
		return "", "", false, err
	}
	return child.ID, created.ID, true, nil
}

// resolveParentLink copies every relation owned by the inviting parent onto
// the authenticated principal. Edges that already exist are skipped, so
// redeeming twice never duplicates rows.
func (l *Linker) resolveParentLink(ctx context.Context, authedUserID *string, payload qrsign.LinkPayload) (LinkResult, error) {
	if authedUserID == nil {
		return LinkResult{}, errs.ErrUnauthenticated
	}

	err := l.txr.InTx(ctx, func(q repository.Querier) error {
		relations, err := q.ListRelationsByParent(ctx, payload.IssuerID)
		if err != nil {
			return err
		}
		now := l.now()
		for _, rel := range relations {
			copied := model.ParentChildRelation{
				ParentID:  *authedUserID,
				ChildID:   rel.ChildID,
				Nickname:  rel.Nickname,
				CreatedAt: now,
			}
			if err := q.CreateRelation(ctx, copied); err != nil {
				return err
			}
		}
		return q.UpsertRole(ctx, model.RoleAssignment{UserID: *authedUserID, Role: "parent"})
	})
	if err != nil {
		return LinkResult{}, err
	}
	l.logger.Info("resolved parent link",
		zap.String("inviter_id", payload.IssuerID),
		zap.String("linked_id", *authedUserID),
	)
	return LinkResult{UserID: *authedUserID, Kind: string(payload.Type)}, nil
}
