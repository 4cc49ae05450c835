package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgelake/sheetsink/internal/db"
	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/schema"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Audit the ledger invariants",
	Long: `Verify runs consistency checks against the bookkeeping tables:
run counters must add up, no run may end Completed with failures,
deduplication must hold one Success row per fingerprint, and no run
may linger in Started (a Started row means a crashed or torn commit).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Warehouse.URL == "" {
			return errors.New("warehouse database URL is required")
		}

		database, err := db.Open(cmd.Context(), cfg.Warehouse.URL, logger)
		if err != nil {
			return err
		}
		defer database.Close()

		problems := 0
		for _, check := range ledgerChecks(cfg.Warehouse.Schema) {
			n, err := countRows(cmd.Context(), database.Pool, check.query)
			if err != nil {
				return fmt.Errorf("%s: %w", check.name, err)
			}
			if n > 0 {
				problems++
				fmt.Printf("FAIL  %-38s %d offending rows\n", check.name, n)
			} else {
				fmt.Printf("ok    %s\n", check.name)
			}
		}

		if problems > 0 {
			return fmt.Errorf("%d ledger check(s) failed", problems)
		}
		fmt.Println("All ledger checks passed.")
		return nil
	},
}

type ledgerCheck struct {
	name  string
	query string
}

// ledgerChecks returns queries that each count invariant violations.
func ledgerChecks(schemaName string) []ledgerCheck {
	logT := schema.QualifiedName(schemaName, "processing_log")
	fileT := schema.QualifiedName(schemaName, "processed_files")
	return []ledgerCheck{
		{
			name: "run counters add up",
			query: fmt.Sprintf(`SELECT count(*) FROM %s
				WHERE last_processed_count <> successful_items + failed_items`, logT),
		},
		{
			name: "failed runs are marked Failed",
			query: fmt.Sprintf(`SELECT count(*) FROM %s
				WHERE failed_items > 0 AND status = '%s'`, logT, ledger.StatusCompleted),
		},
		{
			name: "no torn runs left in Started",
			query: fmt.Sprintf(`SELECT count(*) FROM %s
				WHERE status = '%s'`, logT, ledger.StatusStarted),
		},
		{
			name: "one Success row per fingerprint",
			query: fmt.Sprintf(`SELECT count(*) FROM (
				SELECT file_hash, file_size_bytes FROM %s
				WHERE status = '%s'
				GROUP BY file_hash, file_size_bytes HAVING count(*) > 1
			) dup`, fileT, ledger.FileSuccess),
		},
		{
			name: "successful files carry no error message",
			query: fmt.Sprintf(`SELECT count(*) FROM %s
				WHERE status = '%s' AND error_message <> ''`, fileT, ledger.FileSuccess),
		},
	}
}

func countRows(ctx context.Context, db ledger.DBTX, query string) (int64, error) {
	var n int64
	err := db.QueryRow(ctx, query).Scan(&n)
	return n, err
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
