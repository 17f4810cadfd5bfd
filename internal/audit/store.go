// Package audit implements the append-only ledger of credential lifecycle
// events. Every state-changing operation in the credential service appends
// exactly one event before acknowledging the caller; a ledger failure aborts
// the triggering operation.
package audit

import (
	"context"

	id "tempauth/pkg/domain"
)

// Ledger is the append-only event store. Implementations assign event IDs and
// timestamps at append time; callers never supply them.
//
// Append must be durable (or participate in the caller's transaction) before
// it returns, establishing happens-before between "caller sees success" and
// "audit entry exists". When the underlying persistence is unavailable it
// returns an error wrapping sentinel.ErrUnavailable.
type Ledger interface {
	Append(ctx context.Context, action Action, subjectID id.CredentialID, details string) (Event, error)
	List(ctx context.Context, q Query) ([]Event, error)
}
