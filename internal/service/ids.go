package service

import "github.com/google/uuid"

// IDGenerator abstracts id generation so tests can inject deterministic ids.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator is the production generator (random v4 uuids).
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }
