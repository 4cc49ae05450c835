// Package ops serves the operational HTTP API: health, Prometheus metrics,
// pipeline status, ledger views, a WebSocket stats feed, and the job
// endpoints backing the CLI subcommands.
package ops

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edgelake/sheetsink/internal/config"
	"github.com/edgelake/sheetsink/internal/daemon"
	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/stats"
)

// Server is the ops HTTP server.
type Server struct {
	collector *stats.Collector
	cfg       *config.Config
	jobs      *daemon.JobManager
	db        ledger.DBTX
	logger    zerolog.Logger
	srv       *http.Server
}

// New creates a new Server. db may be nil; the ledger routes then return 503.
func New(collector *stats.Collector, cfg *config.Config, jobs *daemon.JobManager, db ledger.DBTX, logger zerolog.Logger) *Server {
	return &Server{
		collector: collector,
		cfg:       cfg,
		jobs:      jobs,
		db:        db,
		logger:    logger.With().Str("component", "ops-server").Logger(),
	}
}

// Start begins serving on the configured listen address. It blocks until the
// context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	h := &handlers{
		collector: s.collector,
		cfg:       s.cfg,
		db:        s.db,
		logs:      ledger.NewLogStore(s.cfg.Warehouse.Schema),
		files:     ledger.NewFileStore(s.cfg.Warehouse.Schema),
		poison:    ledger.NewPoisonStore(s.cfg.Warehouse.Schema),
	}
	jh := &jobHandlers{jobs: s.jobs, cfg: s.cfg, base: ctx}
	feed := &wsFeed{collector: s.collector, logger: s.logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/status", h.status)
	mux.HandleFunc("GET /api/v1/config", h.configHandler)
	mux.HandleFunc("GET /api/v1/runs", h.runs)
	mux.HandleFunc("GET /api/v1/files", h.processedFiles)
	mux.HandleFunc("GET /api/v1/poison", h.poisoned)
	mux.HandleFunc("GET /api/v1/logs", h.logTail)
	mux.HandleFunc("/api/v1/ws", feed.handle)

	mux.HandleFunc("POST /api/v1/jobs/resync", jh.submitResync)
	mux.HandleFunc("POST /api/v1/jobs/items", jh.submitItems)
	mux.HandleFunc("POST /api/v1/jobs/stop", jh.stopJob)
	mux.HandleFunc("GET /api/v1/jobs/status", jh.jobStatus)

	addr := fmt.Sprintf("%s:%d", s.cfg.Ops.Listen, s.cfg.Ops.Port)
	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info().Str("addr", addr).Msg("starting ops server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.srv.Close()
	case err := <-errCh:
		return err
	}
}

// StartBackground starts the server in a goroutine (non-blocking).
func (s *Server) StartBackground(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Err(err).Msg("ops server error")
		}
	}()
}
