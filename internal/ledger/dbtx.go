// Package ledger owns the pipeline's bookkeeping rows: the processing log
// (one row per committed orchestration run, carrying the delta cursor) and
// the processed-file ledger used for content-hash deduplication. Both stores
// run against a caller-supplied handle so a run's bookkeeping commits in the
// same transaction as its data.
package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the slice of pgx satisfied by *pgxpool.Pool, pgx.Tx and *pgx.Conn.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
