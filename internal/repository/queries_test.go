package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Queries) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func TestExpireTokens(t *testing.T) {
	mock, q := newMock(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE qr_tokens SET status = 'EXPIRED'`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	expired, err := q.ExpireTokens(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 3, expired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUsage(t *testing.T) {
	mock, q := newMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM usage_records WHERE qr_token_id = \$1`).
		WithArgs("qr-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	count, err := q.CountUsage(context.Background(), "qr-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUsageRecordUpserts(t *testing.T) {
	mock, q := newMock(t)
	usedAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	user := "user-1"

	mock.ExpectExec(`INSERT INTO usage_records .*ON CONFLICT \(qr_token_id, device_id\) DO UPDATE`).
		WithArgs("usage-1", "qr-1", "dev-1", &user, usedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := q.InsertUsageRecord(context.Background(), model.UsageRecord{
		ID:        "usage-1",
		QRTokenID: "qr-1",
		DeviceID:  "dev-1",
		UserID:    &user,
		UsedAt:    usedAt,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetQRTokenForUpdateLocksRow(t *testing.T) {
	mock, q := newMock(t)
	expires := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	created := expires.Add(-24 * time.Hour)
	maxUses := 1

	mock.ExpectQuery(`SELECT .* FROM qr_tokens\s+WHERE id = \$1\s+FOR UPDATE`).
		WithArgs("qr-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "purpose", "target_type", "target_id", "lock_policy_id",
			"window_start", "window_end", "window_days", "max_uses", "status", "created_by", "expires_at", "created_at",
		}).AddRow(
			"qr-1", model.PurposeDeviceLock, (*string)(nil), (*string)(nil), (*string)(nil),
			(*string)(nil), (*string)(nil), []string{}, &maxUses, model.TokenActive, "parent-1", expires, created,
		))

	token, err := q.GetQRTokenForUpdate(context.Background(), "qr-1")
	require.NoError(t, err)
	require.Equal(t, "qr-1", token.ID)
	require.Equal(t, model.TokenActive, token.Status)
	require.NotNil(t, token.MaxUses)
	require.Equal(t, 1, *token.MaxUses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileMissingUser(t *testing.T) {
	mock, q := newMock(t)
	updatedAt := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	name := "Kim"

	mock.ExpectExec(`UPDATE users`).
		WithArgs("ghost", (*string)(nil), &name, (*int)(nil), updatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := q.UpdateProfile(context.Background(), "ghost", nil, &name, nil, updatedAt)
	require.ErrorIs(t, err, pgx.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("plain")))
}
