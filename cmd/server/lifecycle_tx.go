package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "recordvault/pkg/domain-errors"
	"recordvault/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// postgresRunner commits engine mutations and their audit facts in one
// database transaction. Stores pick the transaction up from context.
type postgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func newPostgresRunner(db *sql.DB) *postgresRunner {
	return &postgresRunner{db: db}
}

func (r *postgresRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return tx.Run(ctx, r.db, fn)
}
