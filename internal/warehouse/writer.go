// Package warehouse owns the destination side of the pipeline: DDL for the
// bookkeeping and destination tables, bulk loading of normalized rows, and
// start-up verification that the live schema matches the registry.
package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/normalize"
)

// Writer bulk-loads normalized tables inside a caller-held transaction.
type Writer struct {
	schemaName string
	files      *ledger.FileStore
	logger     zerolog.Logger
}

func NewWriter(schemaName string, logger zerolog.Logger) *Writer {
	return &Writer{
		schemaName: schemaName,
		files:      ledger.NewFileStore(schemaName),
		logger:     logger.With().Str("component", "warehouse").Logger(),
	}
}

// Write records the ProcessedFile row first, then copies every normalized
// table into its destination, stamping each row with the file's surrogate
// id. Tables are written in the order given. Nothing is observable until
// the caller commits.
func (w *Writer) Write(ctx context.Context, tx pgx.Tx, file ledger.ProcessedFile, tables []*normalize.NormalizedTable) (int64, error) {
	fileID, err := w.files.Create(ctx, tx, file)
	if err != nil {
		return 0, &WriteError{Table: "processed_files", Err: err}
	}

	for _, nt := range tables {
		if len(nt.Rows) == 0 {
			continue
		}
		cols := make([]string, 0, len(nt.Columns)+1)
		cols = append(cols, "processed_file_id")
		cols = append(cols, nt.Columns...)

		rows := nt.Rows
		count, err := tx.CopyFrom(ctx,
			pgx.Identifier{nt.Spec.Schema(w.schemaName), nt.Spec.TableName},
			cols,
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				row := make([]any, 0, len(rows[i])+1)
				row = append(row, fileID)
				return append(row, rows[i]...), nil
			}))
		if err != nil {
			return 0, &WriteError{Table: nt.Spec.Qualified(w.schemaName), Err: err}
		}
		w.logger.Debug().Str("table", nt.Spec.TableName).Int64("rows", count).Msg("bulk copy complete")
	}
	return fileID, nil
}
