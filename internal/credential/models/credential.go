package models

import (
	"strings"
	"time"

	id "tempauth/pkg/domain"
	dErrors "tempauth/pkg/domain-errors"
)

// Status is the lifecycle state of a credential.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusRevoked
}

// CanTransitionTo encodes the only legal transitions:
// active→expired (time-driven) and active→revoked (caller-driven).
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusActive && target.Terminal()
}

// MaxUsernameLength bounds caller-supplied usernames.
const MaxUsernameLength = 128

// Credential is the aggregate root for one temporary identity.
//
// Invariants:
//   - Username is non-empty, at most 128 characters
//   - Secret is written once at construction and never regenerated
//   - ExpiresAt = CreatedAt + duration, immutable once set
//   - Status only ever moves active→expired or active→revoked; both targets
//     are terminal and mutually exclusive
//   - RevokedAt/RevokedReason are set only on the active→revoked transition
//
// Credentials are never deleted, only transitioned to a terminal status, so
// audit events referencing them stay resolvable.
//
// The Secret field is excluded from JSON on purpose: every read path after
// creation serializes a View, and even accidental marshaling of the full
// struct must not leak the seed.
type Credential struct {
	ID            id.CredentialID `json:"id"`
	Username      string          `json:"username"`
	Email         string          `json:"email,omitempty"`
	Secret        string          `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	Status        Status          `json:"status"`
	RevokedAt     *time.Time      `json:"revoked_at,omitempty"`
	RevokedReason string          `json:"revoked_reason,omitempty"`
}

// NewCredential constructs an active credential expiring duration after now.
func NewCredential(credID id.CredentialID, username, email, secret string, now time.Time, duration time.Duration) (*Credential, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username must be 128 characters or less")
	}
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "secret cannot be empty")
	}
	if duration <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "duration must be positive")
	}
	return &Credential{
		ID:        credID,
		Username:  username,
		Email:     strings.TrimSpace(email),
		Secret:    secret,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
		Status:    StatusActive,
	}, nil
}

// IsActive reports whether the credential is still usable.
func (c *Credential) IsActive() bool {
	return c.Status == StatusActive
}

// DueForExpiry reports whether an active credential's deadline has passed.
func (c *Credential) DueForExpiry(now time.Time) bool {
	return c.Status == StatusActive && !now.Before(c.ExpiresAt)
}

// CanRevoke checks if the credential can transition to revoked status.
// Use with ApplyRevocation in Execute callbacks.
func (c *Credential) CanRevoke() error {
	if !c.Status.CanTransitionTo(StatusRevoked) {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential is already "+string(c.Status))
	}
	return nil
}

// ApplyRevocation transitions the credential to revoked status.
// Call CanRevoke first to validate the transition.
func (c *Credential) ApplyRevocation(now time.Time, reason string) {
	c.Status = StatusRevoked
	c.RevokedAt = &now
	c.RevokedReason = reason
}

// CanExpire checks if the credential can transition to expired status.
// The deadline must actually have passed; expiry is time-driven, not caller-driven.
func (c *Credential) CanExpire(now time.Time) error {
	if !c.Status.CanTransitionTo(StatusExpired) {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential is already "+string(c.Status))
	}
	if now.Before(c.ExpiresAt) {
		return dErrors.New(dErrors.CodeInvariantViolation, "credential has not reached its deadline")
	}
	return nil
}

// ApplyExpiry transitions the credential to expired status.
// Call CanExpire first to validate the transition.
func (c *Credential) ApplyExpiry() {
	c.Status = StatusExpired
}
