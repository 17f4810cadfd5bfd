// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "tempauth/pkg/domain-errors"
)

// CredentialID identifies one temporary access credential. Distinct from a raw
// uuid.UUID so the compiler rejects accidental swaps with other identifiers.
type CredentialID uuid.UUID

// NewCredentialID allocates a fresh random credential ID.
func NewCredentialID() CredentialID {
	return CredentialID(uuid.New())
}

// ParseCredentialID validates an ID string at trust boundaries (handlers, API inputs).
func ParseCredentialID(s string) (CredentialID, error) {
	if s == "" {
		return CredentialID{}, dErrors.New(dErrors.CodeInvalidInput, "credential ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return CredentialID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid credential ID format")
	}
	return CredentialID(id), nil
}

// String returns the canonical UUID form, for logging and audit subjects.
func (id CredentialID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID. Used for service-layer validation.
func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
