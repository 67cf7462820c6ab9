// Package dbx holds the database plumbing shared by repositories: the DBTX
// interface satisfied by both *sql.DB and *sql.Tx, a transaction helper and
// PostgreSQL error classification.
package dbx

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of database/sql used by our repos.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with it and commits when fn returns
// nil. Any error or panic rolls the transaction back; panics are rethrown.
//
// Callers that must persist state and still report a failure (for example a
// failed login counter) return nil from fn and carry the failure out through
// a captured variable.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

const uniqueViolation = "23505"

// UniqueViolation reports whether err is a PostgreSQL unique constraint
// violation and, if so, the name of the violated constraint.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
