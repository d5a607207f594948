package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ohwonsuk/lockmoment-sub001/internal/errs"
	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
)

const deviceColumns = `id, user_id, device_uuid, platform, permissions, active, created_at, updated_at`

func (q *Queries) CreateDevice(ctx context.Context, device model.Device) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO devices (id, user_id, device_uuid, platform, permissions, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, device.ID, device.UserID, device.DeviceUUID, device.Platform, device.Permissions, device.Active, device.CreatedAt, device.UpdatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("device %s: %w", device.DeviceUUID, errs.ErrAlreadyExists)
	}
	return err
}

// UpsertDeviceByUUID registers a device or, on re-registration of a known
// device_uuid, repoints ownership instead of duplicating the row.
func (q *Queries) UpsertDeviceByUUID(ctx context.Context, device model.Device) (model.Device, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO devices (id, user_id, device_uuid, platform, permissions, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_uuid) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    platform = EXCLUDED.platform,
		    permissions = EXCLUDED.permissions,
		    active = true,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+deviceColumns+`
	`, device.ID, device.UserID, device.DeviceUUID, device.Platform, device.Permissions, device.Active, device.CreatedAt, device.UpdatedAt)
	return scanDevice(row)
}

// GetDeviceByIdentifier accepts either the internal row id or the external
// device UUID in the same parameter. The two-clause lookup is deliberate;
// inferring type from string shape causes ambiguity bugs.
func (q *Queries) GetDeviceByIdentifier(ctx context.Context, identifier string) (model.Device, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE id::text = $1 OR lower(device_uuid) = lower($1)
	`, identifier)
	return scanDevice(row)
}

// ListDevicesByUser returns every device row owned by a user, newest first.
func (q *Queries) ListDevicesByUser(ctx context.Context, userID string) ([]model.Device, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (q *Queries) UpdateDeviceOwner(ctx context.Context, deviceID, userID string, updatedAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE devices SET user_id = $2, updated_at = $3 WHERE id = $1
	`, deviceID, userID, updatedAt)
	return err
}

func (q *Queries) DeactivateDevice(ctx context.Context, deviceID string, updatedAt time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE devices SET active = false, updated_at = $2 WHERE id = $1
	`, deviceID, updatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (model.Device, error) {
	var device model.Device
	err := row.Scan(
		&device.ID,
		&device.UserID,
		&device.DeviceUUID,
		&device.Platform,
		&device.Permissions,
		&device.Active,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	return device, err
}
