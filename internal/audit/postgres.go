package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "tempauth/pkg/domain"
	"tempauth/pkg/platform/sentinel"
	txcontext "tempauth/pkg/platform/tx"
)

// Postgres persists the ledger in the audit_events table. The BIGSERIAL id
// column provides the total order; timestamps are clamped against the current
// maximum so they never regress even if the wall clock does.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// querier returns the context transaction when the append participates in a
// store mutation, so the event commits or aborts together with the state change.
func (l *Postgres) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return l.db
}

// Append inserts one event and returns it with the ledger-assigned ID and timestamp.
func (l *Postgres) Append(ctx context.Context, action Action, subjectID id.CredentialID, details string) (Event, error) {
	if !action.Valid() {
		return Event{}, fmt.Errorf("unknown audit action %q", action)
	}

	query := `
		INSERT INTO audit_events (timestamp, action, subject_id, details)
		VALUES (
			GREATEST(now(), (SELECT COALESCE(MAX(timestamp), now()) FROM audit_events)),
			$1, $2, $3
		)
		RETURNING id, timestamp
	`
	event := Event{
		Action:    action,
		SubjectID: subjectID,
		Details:   details,
	}
	err := l.querier(ctx).QueryRowContext(ctx, query,
		string(action),
		uuid.UUID(subjectID),
		details,
	).Scan(&event.ID, &event.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("append audit event: %w (%w)", err, sentinel.ErrUnavailable)
	}
	return event, nil
}

// List returns events matching the query, ordered by (timestamp, id).
func (l *Postgres) List(ctx context.Context, q Query) ([]Event, error) {
	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`
		SELECT id, timestamp, action, subject_id, details
		FROM audit_events
		WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
		  AND ($2::timestamptz IS NULL OR timestamp <= $2)
		ORDER BY timestamp %s, id %s
		OFFSET $3 LIMIT $4
	`, order, order)

	var from, to any
	if !q.From.IsZero() {
		from = q.From
	}
	if !q.To.IsZero() {
		to = q.To
	}

	rows, err := l.querier(ctx).QueryContext(ctx, query, from, to, q.Offset, q.limit())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			event     Event
			action    string
			subjectID uuid.UUID
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &action, &subjectID, &event.Details); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = Action(action)
		event.SubjectID = id.CredentialID(subjectID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
