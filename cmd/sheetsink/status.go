package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgelake/sheetsink/internal/daemon"
	"github.com/edgelake/sheetsink/internal/stats"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress and counters",
	Long: `Status reports the daemon state and the pipeline counters. With a
running daemon and a configured ops port the counters come live from its
API; otherwise the last-persisted state file is shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, running := daemon.IsRunning()
		if running {
			fmt.Printf("Daemon:       running (pid %d)\n", pid)
		} else {
			fmt.Println("Daemon:       not running")
		}

		if running && cfg.Ops.Port > 0 {
			api := daemon.NewClient(fmt.Sprintf("http://%s:%d", cfg.Ops.Listen, cfg.Ops.Port))
			if snap, err := api.Status(); err == nil {
				printSnapshot(snap, false)
				return nil
			}
			fmt.Println("(ops API unreachable, falling back to state file)")
		}

		snap, err := stats.ReadStateFile()
		if err != nil {
			fmt.Println("No pipeline state found. Has the consumer ever run?")
			fmt.Printf("  (error: %v)\n", err)
			return nil
		}
		printSnapshot(snap, time.Since(snap.Timestamp) > 10*time.Second)
		return nil
	},
}

func printSnapshot(snap *stats.Snapshot, stale bool) {
	phase := snap.Phase
	if stale {
		age := time.Since(snap.Timestamp).Truncate(time.Second)
		phase = fmt.Sprintf("%s (stale, %s ago)", phase, age)
	}

	fmt.Printf("Phase:        %s\n", phase)
	fmt.Printf("Elapsed:      %.0fs\n", snap.ElapsedSec)
	fmt.Printf("Messages:     %d consumed, %d archived, %d continuations\n",
		snap.MessagesConsumed, snap.MessagesArchived, snap.Continuations)
	fmt.Printf("Runs:         %d committed", snap.RunsCommitted)
	if snap.LastRunAt != "" {
		fmt.Printf(" (last: %s)", snap.LastRunAt)
	}
	fmt.Println()
	fmt.Printf("Items:        %d succeeded, %d failed, %d skipped, %d duplicates\n",
		snap.ItemsSucceeded, snap.ItemsFailed, snap.ItemsSkipped, snap.Duplicates)
	fmt.Printf("Volume:       %d rows, %d bytes\n", snap.RowsWritten, snap.BytesDownloaded)
	fmt.Printf("Throughput:   %.0f rows/s, %.0f bytes/s\n", snap.RowsPerSec, snap.BytesPerSec)

	if snap.ErrorCount > 0 {
		fmt.Printf("Errors:       %d (last: %s)\n", snap.ErrorCount, snap.LastError)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
