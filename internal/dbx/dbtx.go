// Package dbx holds the database plumbing shared by the repositories: the
// DBTX interface satisfied by *sql.DB and *sql.Tx, and the unit-of-work
// helper.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/evidencekeeper/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of database/sql used by the repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// WithTx runs fn as one unit of work. The transaction commits when fn
// returns nil and is rolled back otherwise, panics included. Serialization
// failures and deadlocks reported by PostgreSQL come back as
// common.ErrVersionConflict so callers retry them like a lost conditional
// write.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    return nodes.NewPostgresRepository(tx).SetHoldStatus(ctx, id, version, models.HoldApplied)
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return Conflict(err)
	}

	done = true
	if err := tx.Commit(); err != nil {
		return Conflict(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Conflict marks transient PostgreSQL transaction aborts with
// common.ErrVersionConflict. Other errors are returned unchanged.
func Conflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected:
		return fmt.Errorf("%w: %w", common.ErrVersionConflict, err)
	}
	return err
}
