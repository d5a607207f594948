package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ohwonsuk/lockmoment-sub001/internal/errs"
	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
)

func (q *Queries) CreateUser(ctx context.Context, user model.User) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO users (id, provider, provider_sub, phone, name, birth_year, pin_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Provider, user.ProviderSub, user.Phone, user.Name, user.BirthYear, user.PinHash, user.CreatedAt, user.UpdatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.ID, errs.ErrAlreadyExists)
	}
	return err
}

func (q *Queries) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := q.db.QueryRow(ctx, `
		SELECT id, provider, provider_sub, phone, name, birth_year, pin_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	err := row.Scan(
		&user.ID,
		&user.Provider,
		&user.ProviderSub,
		&user.Phone,
		&user.Name,
		&user.BirthYear,
		&user.PinHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (q *Queries) GetUserByProviderSub(ctx context.Context, provider model.AuthProvider, sub string) (model.User, error) {
	var user model.User
	row := q.db.QueryRow(ctx, `
		SELECT id, provider, provider_sub, phone, name, birth_year, pin_hash, created_at, updated_at
		FROM users
		WHERE provider = $1 AND provider_sub = $2
	`, provider, sub)
	err := row.Scan(
		&user.ID,
		&user.Provider,
		&user.ProviderSub,
		&user.Phone,
		&user.Name,
		&user.BirthYear,
		&user.PinHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (q *Queries) UpdateProfile(ctx context.Context, userID string, phone, name *string, birthYear *int, updatedAt time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users
		SET phone = COALESCE($2, phone),
		    name = COALESCE($3, name),
		    birth_year = COALESCE($4, birth_year),
		    updated_at = $5
		WHERE id = $1
	`, userID, phone, name, birthYear, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// BackfillChildInfo fills birth_year and phone only where currently unset.
// Existing values are never overwritten.
func (q *Queries) BackfillChildInfo(ctx context.Context, userID string, birthYear *int, phone *string, updatedAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE users
		SET birth_year = COALESCE(birth_year, $2),
		    phone = COALESCE(phone, $3),
		    updated_at = $4
		WHERE id = $1
	`, userID, birthYear, phone, updatedAt)
	return err
}

func (q *Queries) SetPinHash(ctx context.Context, userID, pinHash string, updatedAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE users SET pin_hash = $2, updated_at = $3 WHERE id = $1
	`, userID, pinHash, updatedAt)
	return err
}

func (q *Queries) UpsertRole(ctx context.Context, role model.RoleAssignment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO role_assignments (user_id, role, scope_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, role.UserID, role.Role, role.ScopeID)
	return err
}

// GetPrimaryRole returns the principal's global role, falling back to the
// first scoped one. Missing rows yield an empty role, not an error.
func (q *Queries) GetPrimaryRole(ctx context.Context, userID string) (string, error) {
	var role string
	row := q.db.QueryRow(ctx, `
		SELECT role FROM role_assignments
		WHERE user_id = $1
		ORDER BY scope_id NULLS FIRST
		LIMIT 1
	`, userID)
	if err := row.Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return role, nil
}
