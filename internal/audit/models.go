package audit

import (
	"time"

	id "tempauth/pkg/domain"
)

// Action enumerates the lifecycle facts the ledger records.
type Action string

const (
	ActionCreate        Action = "CREATE"
	ActionRevoke        Action = "REVOKE"
	ActionExpire        Action = "EXPIRE"
	ActionVerifySuccess Action = "VERIFY_SUCCESS"
	ActionVerifyFailure Action = "VERIFY_FAILURE"
)

// knownActions guards List filters and Append inputs against typos.
var knownActions = map[Action]struct{}{
	ActionCreate:        {},
	ActionRevoke:        {},
	ActionExpire:        {},
	ActionVerifySuccess: {},
	ActionVerifyFailure: {},
}

// Valid reports whether the action is one of the enumerated lifecycle facts.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Event is one immutable fact about the system's history. Events are created
// exclusively by the ledger at append time and never mutated afterwards.
//
// Invariants:
//   - ID strictly increases in commit order
//   - Timestamp never decreases across appended events
//   - Details never contains secret material
type Event struct {
	ID        uint64          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Action    Action          `json:"action"`
	SubjectID id.CredentialID `json:"subject_id"`
	Details   string          `json:"details"`
}

// Query narrows and paginates a ledger listing. Zero time bounds mean
// unbounded; Limit 0 applies DefaultListLimit.
type Query struct {
	From       time.Time
	To         time.Time
	Offset     int
	Limit      int
	Descending bool
}

// DefaultListLimit caps unpaginated listings so the ledger stays finite to read.
const DefaultListLimit = 100

// MaxListLimit bounds a single page regardless of what the caller asks for.
const MaxListLimit = 1000

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultListLimit
	case q.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return q.Limit
	}
}

// Matches reports whether the event falls inside the query's time range.
func (q Query) Matches(e Event) bool {
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.Timestamp.After(q.To) {
		return false
	}
	return true
}
