package store

import (
	"context"
	"database/sql"
)

// DBTX is the minimal query surface the stores run against. Both
// *sql.DB and *sql.Tx satisfy it, so a store built over a connection
// pool can be rebased onto a transaction via WithTx without changing
// any query code.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
