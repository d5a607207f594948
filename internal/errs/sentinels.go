// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated indicates a missing or invalid session token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidSignature indicates a QR payload whose signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrExpired indicates a token past its TTL.
	ErrExpired = errors.New("expired")

	// ErrNotFound indicates an unknown token, device, preset, or relation.
	ErrNotFound = errors.New("not found")

	// ErrScheduleViolation indicates a scan outside the allowed time window.
	ErrScheduleViolation = errors.New("schedule violation")

	// ErrUseLimitExceeded indicates a token redeemed past its max use count.
	ErrUseLimitExceeded = errors.New("use limit exceeded")

	// ErrMalformedPayload indicates unparsable input or missing required fields.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
)

// ScheduleError wraps ErrScheduleViolation with a human-readable reason
// naming the allowed window or days.
type ScheduleError struct {
	Reason string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("schedule violation: %s", e.Reason)
}

func (e *ScheduleError) Unwrap() error { return ErrScheduleViolation }
