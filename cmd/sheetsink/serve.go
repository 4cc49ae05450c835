package main

import (
	"github.com/spf13/cobra"

	"github.com/edgelake/sheetsink/internal/db"
	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/ops"
	"github.com/edgelake/sheetsink/internal/stats"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the standalone ops API server",
	Long: `Serve starts the ops HTTP API without the consumer. It reads the
last-known counters from the state file and, when the warehouse is
reachable, serves the ledger views. Job submission is disabled; use
a running consumer for that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		collector := stats.NewCollector(logger)
		defer collector.Close()

		if snap, err := stats.ReadStateFile(); err == nil {
			collector.SetPhase(snap.Phase)
		}

		var pool ledger.DBTX
		if cfg.Warehouse.URL != "" {
			database, err := db.Open(cmd.Context(), cfg.Warehouse.URL, logger)
			if err != nil {
				logger.Warn().Err(err).Msg("warehouse unreachable, ledger routes disabled")
			} else {
				defer database.Close()
				pool = database.Pool
			}
		}

		cfg.Ops.Port = servePort
		srv := ops.New(collector, &cfg, nil, pool, logger)
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 7687, "HTTP server port")
	rootCmd.AddCommand(serveCmd)
}
