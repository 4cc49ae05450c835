package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edgelake/sheetsink/internal/consume"
	"github.com/edgelake/sheetsink/internal/daemon"
	"github.com/edgelake/sheetsink/internal/db"
	"github.com/edgelake/sheetsink/internal/ops"
	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/source"
	"github.com/edgelake/sheetsink/internal/stats"
	syncer "github.com/edgelake/sheetsink/internal/sync"
	"github.com/edgelake/sheetsink/internal/warehouse"
)

var (
	runDetach  bool
	runAPIPort int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume change notifications and sync spreadsheets",
	Long: `Run starts the notification consumer: queue messages are dispatched to
the sync processor, which pulls the delta feed, downloads changed
workbooks, and bulk-loads their rows into the warehouse. With --detach
the consumer keeps running in the background after the terminal closes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		if runDetach && !daemon.IsDaemonProcess() {
			childArgs := stripDetachFlag(os.Args[1:])
			pid, err := daemon.Background(childArgs)
			if err != nil {
				return err
			}
			logPath, _ := daemon.LogPath()
			fmt.Printf("sheetsink daemon started (pid %d)\n", pid)
			fmt.Printf("  logs: %s\n", logPath)
			if runAPIPort > 0 {
				fmt.Printf("  api:  http://localhost:%d\n", runAPIPort)
			}
			return nil
		}

		if daemon.IsDaemonProcess() {
			if err := daemon.WritePID(); err != nil {
				return err
			}
			defer daemon.RemovePID()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		collector := stats.NewCollector(logger)
		defer collector.Close()

		// Route log lines into the collector so the ops API serves the tail.
		logger = zerolog.New(zerolog.MultiLevelWriter(logOutput, stats.NewLogWriter(collector))).
			With().Timestamp().Logger().Level(logger.GetLevel())

		persister, err := stats.NewStatePersister(collector, logger)
		if err != nil {
			return err
		}
		persister.Start()
		defer persister.Stop()

		reg, err := schema.NewRegistry(schema.Catalog())
		if err != nil {
			return err
		}

		database, err := db.Open(ctx, cfg.Warehouse.URL, logger)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := warehouse.VerifyTables(ctx, database.Pool, reg, cfg.Warehouse.Schema); err != nil {
			return fmt.Errorf("warehouse schema check failed (run `sheetsink migrate` first): %w", err)
		}

		client := source.New(cfg.Source, logger)
		proc := syncer.NewProcessor(&cfg, database.Pool, reg, client, logger)
		proc.SetRecorder(collector)

		jobs := daemon.NewJobManager(proc, collector, logger)

		if runAPIPort > 0 {
			cfg.Ops.Port = runAPIPort
		}
		if cfg.Ops.Port > 0 {
			srv := ops.New(collector, &cfg, jobs, database.Pool, logger)
			srv.StartBackground(ctx)
		}

		consumer := consume.New(&cfg, proc, client, database.Pool, collector, logger)
		return consumer.Run(ctx)
	},
}

// stripDetachFlag removes --detach from the re-exec argument list so the
// child runs in the foreground.
func stripDetachFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || a == "--detach=true" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func init() {
	runCmd.Flags().BoolVar(&runDetach, "detach", false, "Run in the background as a daemon")
	runCmd.Flags().IntVar(&runAPIPort, "api-port", 0, "Enable the ops HTTP API on this port (0 = config value)")
	rootCmd.AddCommand(runCmd)
}
