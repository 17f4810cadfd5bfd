package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "tempauth/pkg/domain-errors"
	txcontext "tempauth/pkg/platform/tx"
)

const defaultCredentialTxTimeout = 5 * time.Second

// credentialPostgresTx runs the credential creation unit of work in one
// database transaction. The transaction rides the context, so the store
// insert and the audit append either both commit or both roll back.
type credentialPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newCredentialPostgresTx(db *sql.DB) *credentialPostgresTx {
	return &credentialPostgresTx{db: db}
}

func (t *credentialPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultCredentialTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is a no-op; error already captured
	}()

	txCtx := txcontext.WithTx(ctx, tx)
	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
