package model

import "time"

// AuthProvider identifies how a principal authenticates.
type AuthProvider string

const (
	ProviderGoogle    AuthProvider = "google"
	ProviderApple     AuthProvider = "apple"
	ProviderAnonymous AuthProvider = "anonymous"
)

type User struct {
	ID          string
	Provider    AuthProvider
	ProviderSub *string
	Phone       *string
	Name        *string
	BirthYear   *int
	PinHash     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileComplete reports whether the principal can issue tokens for most flows.
func (u User) ProfileComplete() bool {
	return u.Phone != nil && *u.Phone != "" && u.Name != nil && *u.Name != ""
}

type RoleAssignment struct {
	UserID  string
	Role    string
	ScopeID *string
}

type ParentChildRelation struct {
	ParentID  string
	ChildID   string
	Nickname  *string
	IsPrimary bool
	CreatedAt time.Time
}

type Device struct {
	ID          string
	UserID      string
	DeviceUUID  string
	Platform    string
	Permissions map[string]string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LockKind distinguishes full device locks from app-scoped locks.
type LockKind string

const (
	LockKindFull LockKind = "full"
	LockKindApps LockKind = "apps"
)

// LockPolicy is immutable after creation; QR tokens and lock history
// reference it by id rather than copying fields.
type LockPolicy struct {
	ID                string
	Kind              LockKind
	DurationMinutes   int
	AllowedApps       []string
	BlockedApps       []string
	BlockedCategories []string
	WindowStart       *string
	WindowEnd         *string
	WindowDays        []string
	CreatedBy         *string
	PresetID          *string
	CreatedAt         time.Time
}

// Preset holds owner-defined defaults for lock policies.
type Preset struct {
	ID                string
	OwnerID           string
	Name              string
	Kind              LockKind
	DurationMinutes   int
	AllowedApps       []string
	BlockedApps       []string
	BlockedCategories []string
	WindowStart       *string
	WindowEnd         *string
	WindowDays        []string
}

// TokenPurpose is the server-side purpose of a stateful QR token.
type TokenPurpose string

const (
	PurposeDeviceLock TokenPurpose = "device_lock"
	PurposeAttendance TokenPurpose = "attendance"
	PurposeLockAttend TokenPurpose = "lock_attendance"
)

// TokenStatus is the lifecycle state of a stateful QR token row.
type TokenStatus string

const (
	TokenActive  TokenStatus = "ACTIVE"
	TokenExpired TokenStatus = "EXPIRED"
)

// QRToken is the persisted row behind a stateful QR payload.
type QRToken struct {
	ID           string
	Purpose      TokenPurpose
	TargetType   *string
	TargetID     *string
	LockPolicyID *string
	WindowStart  *string
	WindowEnd    *string
	WindowDays   []string
	MaxUses      *int
	Status       TokenStatus
	CreatedBy    string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// UsageRecord is an append-only fact that a device redeemed a token.
type UsageRecord struct {
	ID        string
	QRTokenID string
	DeviceID  string
	UserID    *string
	UsedAt    time.Time
}

// AttendanceRecord is upserted per (session, student); re-scans refresh
// CheckedAt rather than inserting a second row.
type AttendanceRecord struct {
	QRTokenID string
	SessionID string
	StudentID string
	DeviceID  string
	Status    string
	CheckedAt time.Time
}
