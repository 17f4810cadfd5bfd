package replay

import (
	"context"
	"sync"
	"time"

	id "tempauth/pkg/domain"
)

// InMemory is a process-local replay guard. Entries expire lazily: each
// MarkUsed sweeps anything whose window has already closed.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewInMemory creates an empty in-memory replay guard.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]time.Time), now: time.Now}
}

// NewInMemoryWithClock creates a guard with an injected clock for tests.
func NewInMemoryWithClock(now func() time.Time) *InMemory {
	return &InMemory{entries: make(map[string]time.Time), now: now}
}

// MarkUsed records the code, returning false when it is already held.
func (g *InMemory) MarkUsed(_ context.Context, credID id.CredentialID, code string, window time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, expiresAt := range g.entries {
		if !expiresAt.After(now) {
			delete(g.entries, key)
		}
	}

	key := credID.String() + ":" + code
	if expiresAt, held := g.entries[key]; held && expiresAt.After(now) {
		return false, nil
	}
	g.entries[key] = now.Add(window)
	return true, nil
}
