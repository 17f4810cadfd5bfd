package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "tempauth/pkg/domain"
	"tempauth/pkg/platform/sentinel"
)

// InMemory keeps the ledger in process memory. It intentionally favors
// clarity over performance: one mutex serializes appends, which is also what
// gives the ledger its total ordering.
type InMemory struct {
	mu     sync.RWMutex
	events []Event
	nextID uint64
	lastTS time.Time
	closed bool
	now    func() time.Time
}

// NewInMemory creates an empty in-memory ledger.
func NewInMemory() *InMemory {
	return &InMemory{nextID: 1, now: time.Now}
}

// NewInMemoryWithClock creates a ledger with an injected clock for tests.
func NewInMemoryWithClock(now func() time.Time) *InMemory {
	return &InMemory{nextID: 1, now: now}
}

// Append records one event, assigning the next sequence ID and a timestamp
// clamped so it never precedes the previous event's.
func (l *InMemory) Append(_ context.Context, action Action, subjectID id.CredentialID, details string) (Event, error) {
	if !action.Valid() {
		return Event{}, fmt.Errorf("unknown audit action %q", action)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Event{}, fmt.Errorf("append audit event: %w", sentinel.ErrUnavailable)
	}

	ts := l.now()
	if ts.Before(l.lastTS) {
		ts = l.lastTS
	}

	event := Event{
		ID:        l.nextID,
		Timestamp: ts,
		Action:    action,
		SubjectID: subjectID,
		Details:   details,
	}
	l.events = append(l.events, event)
	l.nextID++
	l.lastTS = ts
	return event, nil
}

// List returns events matching the query, ordered by (timestamp, id).
func (l *InMemory) List(_ context.Context, q Query) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matched := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if q.Matches(e) {
			matched = append(matched, e)
		}
	}
	// Events are appended in (timestamp, id) order already; descending
	// listings just walk the slice backwards.
	if q.Descending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if q.Offset >= len(matched) {
		return []Event{}, nil
	}
	matched = matched[q.Offset:]
	if limit := q.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	// Copy so callers can't mutate ledger state through the returned slice.
	out := make([]Event, len(matched))
	copy(out, matched)
	return out, nil
}

// Close marks the ledger unavailable. Subsequent appends fail, which lets
// tests exercise the fail-closed path of the credential service.
func (l *InMemory) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}
