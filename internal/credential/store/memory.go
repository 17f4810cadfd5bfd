package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tempauth/internal/credential/models"
	id "tempauth/pkg/domain"
	"tempauth/pkg/platform/sentinel"
)

// record pairs a credential with its own mutex so concurrent operations on
// different credentials never contend.
type record struct {
	mu   sync.Mutex
	cred models.Credential
}

// InMemory stores credentials in process memory.
//
// Locking is two-level: the store mutex guards only the map and the active
// username index, and each record carries its own mutex for state transitions.
// Execute on one credential never blocks Execute on another.
type InMemory struct {
	mu          sync.RWMutex
	records     map[id.CredentialID]*record
	activeNames map[string]id.CredentialID
}

// NewInMemory creates an empty in-memory credential store.
func NewInMemory() *InMemory {
	return &InMemory{
		records:     make(map[id.CredentialID]*record),
		activeNames: make(map[string]id.CredentialID),
	}
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CreateIfUsernameAvailable persists a new credential, reserving its username
// among active credentials.
func (s *InMemory) CreateIfUsernameAvailable(_ context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usernameKey(c.Username)
	if _, taken := s.activeNames[key]; taken {
		return fmt.Errorf("username %q is held by an active credential: %w", c.Username, sentinel.ErrAlreadyUsed)
	}
	if _, exists := s.records[c.ID]; exists {
		return fmt.Errorf("credential %s already exists: %w", c.ID, sentinel.ErrAlreadyUsed)
	}

	s.records[c.ID] = &record{cred: *c}
	s.activeNames[key] = c.ID
	return nil
}

// lookup fetches the record pointer without holding the map lock afterwards,
// so callers can take the record mutex without creating a lock cycle with
// Execute (which holds a record mutex while touching the username index).
func (s *InMemory) lookup(credID id.CredentialID) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[credID]
	return rec, ok
}

// FindByID returns a copy of the credential or sentinel.ErrNotFound.
func (s *InMemory) FindByID(_ context.Context, credID id.CredentialID) (*models.Credential, error) {
	rec, ok := s.lookup(credID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	c := rec.cred
	return &c, nil
}

// FindActiveByUsername returns a copy of the active credential holding the
// username, or sentinel.ErrNotFound.
func (s *InMemory) FindActiveByUsername(ctx context.Context, username string) (*models.Credential, error) {
	s.mu.RLock()
	credID, ok := s.activeNames[usernameKey(username)]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	c, err := s.FindByID(ctx, credID)
	if err != nil {
		return nil, err
	}
	// The index entry can outlive the active status by a moment while a
	// transition commits; the record itself is authoritative.
	if !c.IsActive() {
		return nil, sentinel.ErrNotFound
	}
	return c, nil
}

// ListActive returns copies of all active credentials ordered by creation time.
func (s *InMemory) ListActive(_ context.Context) ([]*models.Credential, error) {
	active := []*models.Credential{}
	for _, rec := range s.snapshot() {
		rec.mu.Lock()
		c := rec.cred
		rec.mu.Unlock()
		if c.IsActive() {
			active = append(active, &c)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID.String() < active[j].ID.String()
	})
	return active, nil
}

// ListDueForExpiry returns IDs of active credentials at or past their deadline.
func (s *InMemory) ListDueForExpiry(_ context.Context, now time.Time) ([]id.CredentialID, error) {
	due := []id.CredentialID{}
	for _, rec := range s.snapshot() {
		rec.mu.Lock()
		c := rec.cred
		rec.mu.Unlock()
		if c.DueForExpiry(now) {
			due = append(due, c.ID)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].String() < due[j].String() })
	return due, nil
}

func (s *InMemory) snapshot() []*record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	return recs
}

// Execute atomically validates and mutates one credential under its record
// lock. The callbacks operate on a copy; the copy replaces the stored state
// only when both succeed, so a failed mutation (including a failed audit
// append) leaves the credential exactly as it was.
func (s *InMemory) Execute(ctx context.Context, credID id.CredentialID, validate func(*models.Credential) error, mutate func(ctx context.Context, c *models.Credential) error) (*models.Credential, error) {
	rec, ok := s.lookup(credID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	working := rec.cred
	if err := validate(&working); err != nil {
		return nil, err
	}
	if err := mutate(ctx, &working); err != nil {
		return nil, err
	}

	leftActive := rec.cred.IsActive() && !working.IsActive()
	rec.cred = working

	if leftActive {
		s.mu.Lock()
		key := usernameKey(working.Username)
		if holder, ok := s.activeNames[key]; ok && holder == credID {
			delete(s.activeNames, key)
		}
		s.mu.Unlock()
	}

	out := working
	return &out, nil
}
