package repository

import (
	"context"

	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
)

// InsertUsageRecord appends a device-usage fact. At most one row exists per
// (token, device); a re-scan from the same device refreshes used_at so the
// use count tracks distinct devices.
func (q *Queries) InsertUsageRecord(ctx context.Context, record model.UsageRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO usage_records (id, qr_token_id, device_id, user_id, used_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (qr_token_id, device_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    used_at = EXCLUDED.used_at
	`, record.ID, record.QRTokenID, record.DeviceID, record.UserID, record.UsedAt)
	return err
}

func (q *Queries) CountUsage(ctx context.Context, tokenID string) (int, error) {
	var count int
	row := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM usage_records WHERE qr_token_id = $1
	`, tokenID)
	err := row.Scan(&count)
	return count, err
}

// UpsertAttendance records presence keyed by (session, student); a re-scan
// refreshes checked_at and the scanning device instead of duplicating.
func (q *Queries) UpsertAttendance(ctx context.Context, record model.AttendanceRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO attendance_records (qr_token_id, session_id, student_id, device_id, status, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, student_id) DO UPDATE
		SET qr_token_id = EXCLUDED.qr_token_id,
		    device_id = EXCLUDED.device_id,
		    status = EXCLUDED.status,
		    checked_at = EXCLUDED.checked_at
	`, record.QRTokenID, record.SessionID, record.StudentID, record.DeviceID, record.Status, record.CheckedAt)
	return err
}
