package warehouse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// WriteError wraps a bulk-load failure with the destination table it hit.
type WriteError struct {
	Table string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s: %v", e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsConstraintViolation reports whether err carries a Postgres integrity
// violation (SQLSTATE class 23). The loser of a concurrent ingest race hits
// one on the (file_hash, file_size_bytes) unique index; its run rolls back
// and the broker redelivers the message, where dedup then sees the winner.
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}
