package main

import (
	"context"
	"database/sql"
	"time"

	"proctrack/internal/platform/postgres"
	dErrors "proctrack/pkg/domain-errors"
	txcontext "proctrack/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// postgresTx runs a transition inside one database transaction. Stores pick
// the transaction up from the context, so a reference number issued inside
// fn is rolled back with everything else when fn fails.
type postgresTx struct {
	db          *sql.DB
	timeout     time.Duration
	lockTimeout time.Duration
}

func newPostgresTx(db *sql.DB, timeout, lockTimeout time.Duration) *postgresTx {
	return &postgresTx{db: db, timeout: timeout, lockTimeout: lockTimeout}
}

func (t *postgresTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(postgres.Classify(err), dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := postgres.SetLocalLockTimeout(ctx, tx, t.lockTimeout); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set lock timeout")
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(postgres.Classify(err), dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
