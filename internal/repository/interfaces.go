package repository

import (
	"context"
	"time"

	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
)

// Querier is the query surface services depend on. *Queries satisfies it;
// tests substitute fakes.
type Querier interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	GetUserByProviderSub(ctx context.Context, provider model.AuthProvider, sub string) (model.User, error)
	UpdateProfile(ctx context.Context, userID string, phone, name *string, birthYear *int, updatedAt time.Time) error
	BackfillChildInfo(ctx context.Context, userID string, birthYear *int, phone *string, updatedAt time.Time) error
	SetPinHash(ctx context.Context, userID, pinHash string, updatedAt time.Time) error
	UpsertRole(ctx context.Context, role model.RoleAssignment) error
	GetPrimaryRole(ctx context.Context, userID string) (string, error)

	CreateDevice(ctx context.Context, device model.Device) error
	UpsertDeviceByUUID(ctx context.Context, device model.Device) (model.Device, error)
	GetDeviceByIdentifier(ctx context.Context, identifier string) (model.Device, error)
	ListDevicesByUser(ctx context.Context, userID string) ([]model.Device, error)
	UpdateDeviceOwner(ctx context.Context, deviceID, userID string, updatedAt time.Time) error
	DeactivateDevice(ctx context.Context, deviceID string, updatedAt time.Time) error

	CreateRelation(ctx context.Context, rel model.ParentChildRelation) error
	GetRelationByNickname(ctx context.Context, parentID, nickname string) (model.ParentChildRelation, error)
	ListRelationsByParent(ctx context.Context, parentID string) ([]model.ParentChildRelation, error)

	GetPreset(ctx context.Context, presetID string) (model.Preset, error)
	CreateLockPolicy(ctx context.Context, policy model.LockPolicy) error
	GetLockPolicy(ctx context.Context, policyID string) (model.LockPolicy, error)

	CreateQRToken(ctx context.Context, token model.QRToken) error
	GetQRToken(ctx context.Context, tokenID string) (model.QRToken, error)
	GetQRTokenForUpdate(ctx context.Context, tokenID string) (model.QRToken, error)
	ExpireTokens(ctx context.Context, now time.Time) (int64, error)

	InsertUsageRecord(ctx context.Context, record model.UsageRecord) error
	CountUsage(ctx context.Context, tokenID string) (int, error)
	UpsertAttendance(ctx context.Context, record model.AttendanceRecord) error
}

var _ Querier = (*Queries)(nil)

// TxRunner runs a function over a transaction-scoped Querier.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Querier) error) error
}

// InTx adapts WithTx to the Querier seam.
func (s *Store) InTx(ctx context.Context, fn func(Querier) error) error {
	return s.WithTx(ctx, func(q *Queries) error { return fn(q) })
}
