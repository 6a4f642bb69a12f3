package main

import (
	"context"
	"database/sql"
	"time"

	distributionservice "armora/internal/distribution/service"
	dErrors "armora/pkg/domain-errors"
	"armora/pkg/platform/tx"
)

const defaultDistributionTxTimeout = 5 * time.Second

// distributionPostgresTx runs engine mutations inside one SQL transaction.
// The transaction travels on the context, so the armory stores, distribution
// stores, and the audit store all resolve the same *sql.Tx and commit as one
// unit.
type distributionPostgresTx struct {
	db      *sql.DB
	stores  distributionservice.Stores
	timeout time.Duration
}

func newDistributionPostgresTx(db *sql.DB, stores distributionservice.Stores) *distributionPostgresTx {
	return &distributionPostgresTx{db: db, stores: stores}
}

func (t *distributionPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores distributionservice.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultDistributionTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx), t.stores); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return err
	}
	return nil
}
