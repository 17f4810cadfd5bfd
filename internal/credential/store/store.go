// Package store persists credentials. Two implementations exist: an in-memory
// store with per-record locking for tests and single-node deployments, and a
// PostgreSQL store using row locks for the same guarantees across processes.
package store

import (
	"context"
	"time"

	"tempauth/internal/credential/models"
	id "tempauth/pkg/domain"
)

// Store is the credential persistence contract.
//
// Reads return copies; mutating a returned credential never changes stored
// state. All mutations after creation go through Execute, which serializes
// writers per credential rather than across the whole store.
type Store interface {
	// CreateIfUsernameAvailable persists a new credential unless another
	// active credential already holds the username (case-insensitive), in
	// which case it returns sentinel.ErrAlreadyUsed. Usernames of expired or
	// revoked credentials are free for reuse.
	CreateIfUsernameAvailable(ctx context.Context, c *models.Credential) error

	// FindByID returns the credential or sentinel.ErrNotFound.
	FindByID(ctx context.Context, credID id.CredentialID) (*models.Credential, error)

	// FindActiveByUsername returns the single active credential holding the
	// username, or sentinel.ErrNotFound.
	FindActiveByUsername(ctx context.Context, username string) (*models.Credential, error)

	// ListActive returns all active credentials ordered by creation time.
	ListActive(ctx context.Context) ([]*models.Credential, error)

	// ListDueForExpiry returns IDs of active credentials whose deadline is at
	// or before now. Callers expire each through Execute; the listing itself
	// takes no locks it doesn't need.
	ListDueForExpiry(ctx context.Context, now time.Time) ([]id.CredentialID, error)

	// Execute atomically validates and mutates one credential while holding
	// its lock. The mutate callback receives a context that carries the
	// storage transaction when one exists, so side effects (such as audit
	// appends) commit or abort together with the state change. A non-nil
	// error from validate or mutate leaves the stored credential untouched.
	Execute(ctx context.Context, credID id.CredentialID, validate func(*models.Credential) error, mutate func(ctx context.Context, c *models.Credential) error) (*models.Credential, error)
}
