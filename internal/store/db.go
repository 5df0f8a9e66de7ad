package store

import (
	"context"
	"database/sql"
)

// DBTX abstracts the queryable side of database/sql. Both *sql.DB and
// *sql.Tx satisfy it, so the note and job stores can run against a plain
// connection or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
