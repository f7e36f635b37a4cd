// Package db provides PostgreSQL-backed repository implementations for the
// ThreatWatch platform. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// pgInvalidTextRepresentation is the SQLSTATE Postgres returns when a value
// cannot be cast to the column's type, e.g. a malformed UUID used in an id
// predicate (22P02).
const pgInvalidTextRepresentation = "22P02"

// isMalformedIdentifier reports whether the error is the store rejecting an
// identifier that cannot possibly match a row. Lookups treat it exactly like
// no rows, so callers see (nil, nil) and answer 404 instead of 500.
func isMalformedIdentifier(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation
}

// storeError classifies a failed store call. A failure to reach the database
// at all maps to ErrCodeStoreUnavailable, which the API surfaces as 503;
// everything else is an internal database error.
func storeError(msg string, err error) *types.AppError {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return types.NewAppError(types.ErrCodeStoreUnavailable, "database unavailable", err)
	}
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
