package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus mirrors of the collector counters, served on /metrics by the
// ops server.
var (
	promMessagesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsink_messages_consumed_total",
		Help: "Queue messages pulled from the notification topic.",
	})
	promMessagesArchived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsink_messages_archived_total",
		Help: "Messages parked in the poison store, by reason.",
	}, []string{"reason"})
	promContinuations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsink_continuations_total",
		Help: "Continuation messages re-enqueued for oversized batches.",
	})
	promRunsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsink_runs_committed_total",
		Help: "Orchestration runs committed to the processing log.",
	})
	promItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsink_items_total",
		Help: "Source items handled, by outcome.",
	}, []string{"outcome"})
	promRowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsink_rows_written_total",
		Help: "Destination rows bulk-loaded into the warehouse.",
	})
	promBytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsink_bytes_downloaded_total",
		Help: "Artifact bytes downloaded from the Source.",
	})
	promErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sheetsink_errors_total",
		Help: "Errors recorded by the pipeline.",
	})
)
