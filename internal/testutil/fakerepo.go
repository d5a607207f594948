// Package testutil provides an in-memory repository fake shared by service
// and handler tests.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
	"github.com/ohwonsuk/lockmoment-sub001/internal/repository"
)

// FakeRepo implements repository.Querier and repository.TxRunner in memory.
// InTx serializes on a mutex, mirroring the row-lock discipline of the real
// store closely enough for redemption-race tests.
type FakeRepo struct {
	mu sync.Mutex

	Users      map[string]model.User
	Roles      []model.RoleAssignment
	Relations  map[string]model.ParentChildRelation
	Devices    map[string]model.Device
	Presets    map[string]model.Preset
	Policies   map[string]model.LockPolicy
	Tokens     map[string]model.QRToken
	Usage      map[string]model.UsageRecord
	Attendance map[string]model.AttendanceRecord
}

var (
	_ repository.Querier  = (*FakeRepo)(nil)
	_ repository.TxRunner = (*FakeRepo)(nil)
)

func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		Users:      map[string]model.User{},
		Relations:  map[string]model.ParentChildRelation{},
		Devices:    map[string]model.Device{},
		Presets:    map[string]model.Preset{},
		Policies:   map[string]model.LockPolicy{},
		Tokens:     map[string]model.QRToken{},
		Usage:      map[string]model.UsageRecord{},
		Attendance: map[string]model.AttendanceRecord{},
	}
}

func (f *FakeRepo) InTx(ctx context.Context, fn func(repository.Querier) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

// Users

func (f *FakeRepo) CreateUser(_ context.Context, user model.User) error {
	f.Users[user.ID] = user
	return nil
}

func (f *FakeRepo) GetUserByID(_ context.Context, userID string) (model.User, error) {
	user, ok := f.Users[userID]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (f *FakeRepo) GetUserByProviderSub(_ context.Context, provider model.AuthProvider, sub string) (model.User, error) {
	for _, user := range f.Users {
		if user.Provider == provider && user.ProviderSub != nil && *user.ProviderSub == sub {
			return user, nil
		}
	}
	return model.User{}, pgx.ErrNoRows
}

func (f *FakeRepo) UpdateProfile(_ context.Context, userID string, phone, name *string, birthYear *int, updatedAt time.Time) error {
	user, ok := f.Users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	if phone != nil {
		user.Phone = phone
	}
	if name != nil {
		user.Name = name
	}
	if birthYear != nil {
		user.BirthYear = birthYear
	}
	user.UpdatedAt = updatedAt
	f.Users[userID] = user
	return nil
}

func (f *FakeRepo) BackfillChildInfo(_ context.Context, userID string, birthYear *int, phone *string, updatedAt time.Time) error {
	user, ok := f.Users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	if user.BirthYear == nil && birthYear != nil {
		user.BirthYear = birthYear
	}
	if (user.Phone == nil || *user.Phone == "") && phone != nil {
		user.Phone = phone
	}
	user.UpdatedAt = updatedAt
	f.Users[userID] = user
	return nil
}

func (f *FakeRepo) SetPinHash(_ context.Context, userID, pinHash string, updatedAt time.Time) error {
	user, ok := f.Users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PinHash = &pinHash
	user.UpdatedAt = updatedAt
	f.Users[userID] = user
	return nil
}

func (f *FakeRepo) UpsertRole(_ context.Context, role model.RoleAssignment) error {
	for _, existing := range f.Roles {
		if existing.UserID == role.UserID && existing.Role == role.Role && equalPtr(existing.ScopeID, role.ScopeID) {
			return nil
		}
	}
	f.Roles = append(f.Roles, role)
	return nil
}

func (f *FakeRepo) GetPrimaryRole(_ context.Context, userID string) (string, error) {
	for _, role := range f.Roles {
		if role.UserID == userID {
			return role.Role, nil
		}
	}
	return "", nil
}

// Devices

func (f *FakeRepo) CreateDevice(_ context.Context, device model.Device) error {
	f.Devices[device.ID] = device
	return nil
}

func (f *FakeRepo) UpsertDeviceByUUID(_ context.Context, device model.Device) (model.Device, error) {
	for id, existing := range f.Devices {
		if strings.EqualFold(existing.DeviceUUID, device.DeviceUUID) {
			existing.UserID = device.UserID
			existing.Platform = device.Platform
			existing.Permissions = device.Permissions
			existing.Active = true
			existing.UpdatedAt = device.UpdatedAt
			f.Devices[id] = existing
			return existing, nil
		}
	}
	f.Devices[device.ID] = device
	return device, nil
}

func (f *FakeRepo) GetDeviceByIdentifier(_ context.Context, identifier string) (model.Device, error) {
	for _, device := range f.Devices {
		if device.ID == identifier || strings.EqualFold(device.DeviceUUID, identifier) {
			return device, nil
		}
	}
	return model.Device{}, pgx.ErrNoRows
}

func (f *FakeRepo) ListDevicesByUser(_ context.Context, userID string) ([]model.Device, error) {
	var devices []model.Device
	for _, device := range f.Devices {
		if device.UserID == userID {
			devices = append(devices, device)
		}
	}
	return devices, nil
}

func (f *FakeRepo) UpdateDeviceOwner(_ context.Context, deviceID, userID string, updatedAt time.Time) error {
	device, ok := f.Devices[deviceID]
	if !ok {
		return pgx.ErrNoRows
	}
	device.UserID = userID
	device.UpdatedAt = updatedAt
	f.Devices[deviceID] = device
	return nil
}

func (f *FakeRepo) DeactivateDevice(_ context.Context, deviceID string, updatedAt time.Time) error {
	device, ok := f.Devices[deviceID]
	if !ok {
		return pgx.ErrNoRows
	}
	device.Active = false
	device.UpdatedAt = updatedAt
	f.Devices[deviceID] = device
	return nil
}

// Relations

func (f *FakeRepo) CreateRelation(_ context.Context, rel model.ParentChildRelation) error {
	key := rel.ParentID + "|" + rel.ChildID
	if _, exists := f.Relations[key]; exists {
		return nil
	}
	f.Relations[key] = rel
	return nil
}

func (f *FakeRepo) GetRelationByNickname(_ context.Context, parentID, nickname string) (model.ParentChildRelation, error) {
	for _, rel := range f.Relations {
		if rel.ParentID == parentID && rel.Nickname != nil && *rel.Nickname == nickname {
			return rel, nil
		}
	}
	return model.ParentChildRelation{}, pgx.ErrNoRows
}

func (f *FakeRepo) ListRelationsByParent(_ context.Context, parentID string) ([]model.ParentChildRelation, error) {
	var relations []model.ParentChildRelation
	for _, rel := range f.Relations {
		if rel.ParentID == parentID {
			relations = append(relations, rel)
		}
	}
	return relations, nil
}

// Presets and policies

func (f *FakeRepo) GetPreset(_ context.Context, presetID string) (model.Preset, error) {
	preset, ok := f.Presets[presetID]
	if !ok {
		return model.Preset{}, pgx.ErrNoRows
	}
	return preset, nil
}

func (f *FakeRepo) CreateLockPolicy(_ context.Context, policy model.LockPolicy) error {
	f.Policies[policy.ID] = policy
	return nil
}

func (f *FakeRepo) GetLockPolicy(_ context.Context, policyID string) (model.LockPolicy, error) {
	policy, ok := f.Policies[policyID]
	if !ok {
		return model.LockPolicy{}, pgx.ErrNoRows
	}
	return policy, nil
}

// Tokens

func (f *FakeRepo) CreateQRToken(_ context.Context, token model.QRToken) error {
	f.Tokens[token.ID] = token
	return nil
}

func (f *FakeRepo) GetQRToken(_ context.Context, tokenID string) (model.QRToken, error) {
	token, ok := f.Tokens[tokenID]
	if !ok {
		return model.QRToken{}, pgx.ErrNoRows
	}
	return token, nil
}

func (f *FakeRepo) GetQRTokenForUpdate(ctx context.Context, tokenID string) (model.QRToken, error) {
	return f.GetQRToken(ctx, tokenID)
}

func (f *FakeRepo) ExpireTokens(_ context.Context, now time.Time) (int64, error) {
	var expired int64
	for id, token := range f.Tokens {
		if token.Status == model.TokenActive && token.ExpiresAt.Before(now) {
			token.Status = model.TokenExpired
			f.Tokens[id] = token
			expired++
		}
	}
	return expired, nil
}

// Ledger

func (f *FakeRepo) InsertUsageRecord(_ context.Context, record model.UsageRecord) error {
	f.Usage[record.QRTokenID+"|"+record.DeviceID] = record
	return nil
}

func (f *FakeRepo) CountUsage(_ context.Context, tokenID string) (int, error) {
	count := 0
	for _, record := range f.Usage {
		if record.QRTokenID == tokenID {
			count++
		}
	}
	return count, nil
}

func (f *FakeRepo) UpsertAttendance(_ context.Context, record model.AttendanceRecord) error {
	f.Attendance[record.SessionID+"|"+record.StudentID] = record
	return nil
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
