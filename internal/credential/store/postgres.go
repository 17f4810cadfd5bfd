package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"tempauth/internal/credential/models"
	id "tempauth/pkg/domain"
	"tempauth/pkg/platform/sentinel"
	txcontext "tempauth/pkg/platform/tx"
)

// PostgresStore persists credentials in PostgreSQL. Username uniqueness among
// active credentials is enforced by a partial unique index on
// lower(username) WHERE status = 'active', so it holds across processes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const credentialColumns = `id, username, email, secret, created_at, expires_at, status, revoked_at, revoked_reason`

// CreateIfUsernameAvailable persists a new credential. The partial unique
// index turns a concurrent active-username clash into sentinel.ErrAlreadyUsed.
func (s *PostgresStore) CreateIfUsernameAvailable(ctx context.Context, c *models.Credential) error {
	if c == nil {
		return fmt.Errorf("credential is required")
	}
	query := `
		INSERT INTO credentials (id, username, email, secret, created_at, expires_at, status, revoked_at, revoked_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		c.Username,
		nullString(c.Email),
		c.Secret,
		c.CreatedAt,
		c.ExpiresAt,
		string(c.Status),
		nullTime(c.RevokedAt),
		nullString(c.RevokedReason),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q is held by an active credential: %w", c.Username, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// FindByID retrieves a credential by ID.
func (s *PostgresStore) FindByID(ctx context.Context, credID id.CredentialID) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	c, err := scanCredential(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(credID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by id: %w", err)
	}
	return c, nil
}

// FindActiveByUsername retrieves the active credential holding the username.
func (s *PostgresStore) FindActiveByUsername(ctx context.Context, username string) (*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE lower(username) = lower($1) AND status = 'active'
	`
	c, err := scanCredential(s.execer(ctx).QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by username: %w", err)
	}
	return c, nil
}

// ListActive returns all active credentials ordered by creation time.
func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE status = 'active'
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active credentials: %w", err)
	}
	defer rows.Close()

	creds := []*models.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

// ListDueForExpiry returns IDs of active credentials at or past their deadline.
func (s *PostgresStore) ListDueForExpiry(ctx context.Context, now time.Time) ([]id.CredentialID, error) {
	query := `
		SELECT id FROM credentials
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at ASC, id ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list credentials due for expiry: %w", err)
	}
	defer rows.Close()

	due := []id.CredentialID{}
	for rows.Next() {
		var credID uuid.UUID
		if err := rows.Scan(&credID); err != nil {
			return nil, fmt.Errorf("scan credential id: %w", err)
		}
		due = append(due, id.CredentialID(credID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential ids: %w", err)
	}
	return due, nil
}

// Execute locks the credential row FOR UPDATE inside a transaction, runs the
// callbacks, and writes the result back. The mutate callback receives a
// context carrying the transaction, so audit appends through the same context
// commit atomically with the credential update. When the incoming context
// already carries a transaction, Execute joins it instead of opening its own.
func (s *PostgresStore) Execute(ctx context.Context, credID id.CredentialID, validate func(*models.Credential) error, mutate func(ctx context.Context, c *models.Credential) error) (*models.Credential, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeIn(ctx, credID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin credential tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	c, err := s.executeIn(txcontext.WithTx(ctx, tx), credID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credential tx: %w", err)
	}
	committed = true
	return c, nil
}

func (s *PostgresStore) executeIn(ctx context.Context, credID id.CredentialID, validate func(*models.Credential) error, mutate func(ctx context.Context, c *models.Credential) error) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1 FOR UPDATE`
	c, err := scanCredential(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(credID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock credential: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, err
	}
	if err := mutate(ctx, c); err != nil {
		return nil, err
	}

	update := `
		UPDATE credentials
		SET status = $2, revoked_at = $3, revoked_reason = $4
		WHERE id = $1
	`
	if _, err := s.execer(ctx).ExecContext(ctx, update,
		uuid.UUID(credID),
		string(c.Status),
		nullTime(c.RevokedAt),
		nullString(c.RevokedReason),
	); err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	return c, nil
}

type credentialRow interface {
	Scan(dest ...any) error
}

func scanCredential(row credentialRow) (*models.Credential, error) {
	var (
		credID  uuid.UUID
		email   sql.NullString
		status  string
		revoked sql.NullTime
		reason  sql.NullString
		c       models.Credential
	)
	if err := row.Scan(
		&credID, &c.Username, &email, &c.Secret,
		&c.CreatedAt, &c.ExpiresAt, &status, &revoked, &reason,
	); err != nil {
		return nil, err
	}
	c.ID = id.CredentialID(credID)
	c.Status = models.Status(status)
	if email.Valid {
		c.Email = email.String
	}
	if revoked.Valid {
		t := revoked.Time
		c.RevokedAt = &t
	}
	if reason.Valid {
		c.RevokedReason = reason.String
	}
	return &c, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
