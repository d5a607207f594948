package repository

import (
	"context"
	"time"

	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
)

const policyColumns = `id, kind, duration_minutes, allowed_apps, blocked_apps, blocked_categories,
	window_start, window_end, window_days, created_by, preset_id, created_at`

func (q *Queries) CreateLockPolicy(ctx context.Context, policy model.LockPolicy) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO lock_policies (id, kind, duration_minutes, allowed_apps, blocked_apps, blocked_categories,
			window_start, window_end, window_days, created_by, preset_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, policy.ID, policy.Kind, policy.DurationMinutes, policy.AllowedApps, policy.BlockedApps, policy.BlockedCategories,
		policy.WindowStart, policy.WindowEnd, policy.WindowDays, policy.CreatedBy, policy.PresetID, policy.CreatedAt)
	return err
}

func (q *Queries) GetLockPolicy(ctx context.Context, policyID string) (model.LockPolicy, error) {
	var policy model.LockPolicy
	row := q.db.QueryRow(ctx, `
		SELECT `+policyColumns+`
		FROM lock_policies
		WHERE id = $1
	`, policyID)
	err := row.Scan(
		&policy.ID,
		&policy.Kind,
		&policy.DurationMinutes,
		&policy.AllowedApps,
		&policy.BlockedApps,
		&policy.BlockedCategories,
		&policy.WindowStart,
		&policy.WindowEnd,
		&policy.WindowDays,
		&policy.CreatedBy,
		&policy.PresetID,
		&policy.CreatedAt,
	)
	return policy, err
}

func (q *Queries) GetPreset(ctx context.Context, presetID string) (model.Preset, error) {
	var preset model.Preset
	row := q.db.QueryRow(ctx, `
		SELECT id, owner_id, name, kind, duration_minutes, allowed_apps, blocked_apps, blocked_categories,
			window_start, window_end, window_days
		FROM presets
		WHERE id = $1
	`, presetID)
	err := row.Scan(
		&preset.ID,
		&preset.OwnerID,
		&preset.Name,
		&preset.Kind,
		&preset.DurationMinutes,
		&preset.AllowedApps,
		&preset.BlockedApps,
		&preset.BlockedCategories,
		&preset.WindowStart,
		&preset.WindowEnd,
		&preset.WindowDays,
	)
	return preset, err
}

const tokenColumns = `id, purpose, target_type, target_id, lock_policy_id,
	window_start, window_end, window_days, max_uses, status, created_by, expires_at, created_at`

func (q *Queries) CreateQRToken(ctx context.Context, token model.QRToken) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO qr_tokens (id, purpose, target_type, target_id, lock_policy_id,
			window_start, window_end, window_days, max_uses, status, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, token.ID, token.Purpose, token.TargetType, token.TargetID, token.LockPolicyID,
		token.WindowStart, token.WindowEnd, token.WindowDays, token.MaxUses, token.Status, token.CreatedBy, token.ExpiresAt, token.CreatedAt)
	return err
}

func (q *Queries) GetQRToken(ctx context.Context, tokenID string) (model.QRToken, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM qr_tokens
		WHERE id = $1
	`, tokenID)
	return scanToken(row)
}

// GetQRTokenForUpdate locks the token row so concurrent redemptions of a
// limited-use token serialize on the count-then-insert step.
func (q *Queries) GetQRTokenForUpdate(ctx context.Context, tokenID string) (model.QRToken, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+tokenColumns+`
		FROM qr_tokens
		WHERE id = $1
		FOR UPDATE
	`, tokenID)
	return scanToken(row)
}

// ExpireTokens flips ACTIVE tokens past their expiry to EXPIRED and returns
// how many rows changed.
func (q *Queries) ExpireTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE qr_tokens SET status = 'EXPIRED'
		WHERE status = 'ACTIVE' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanToken(row rowScanner) (model.QRToken, error) {
	var token model.QRToken
	err := row.Scan(
		&token.ID,
		&token.Purpose,
		&token.TargetType,
		&token.TargetID,
		&token.LockPolicyID,
		&token.WindowStart,
		&token.WindowEnd,
		&token.WindowDays,
		&token.MaxUses,
		&token.Status,
		&token.CreatedBy,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	return token, err
}
