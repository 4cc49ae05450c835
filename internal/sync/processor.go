// Package sync is the orchestrator: it drives the resumable delta cursor
// against the Source, fetches and filters the changed items, and commits
// decoded rows plus bookkeeping inside one database transaction per run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edgelake/sheetsink/internal/config"
	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/source"
	"github.com/edgelake/sheetsink/internal/warehouse"
)

// API is the slice of the Source client the processor drives.
type API interface {
	PullItemsDelta(ctx context.Context, site, list, cursor string) (string, []string, error)
	PullItemsModifiedSince(ctx context.Context, site, list string, since time.Time) ([]string, error)
	GetListItem(ctx context.Context, site, list, item string) (source.ListItem, error)
	GetDriveItem(ctx context.Context, site, list, item string) (source.DriveItem, error)
	Download(ctx context.Context, driveID, itemID string) ([]byte, error)
}

// Beginner opens transactions. Satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Recorder receives volume counters from item processing. Satisfied by
// *stats.Collector.
type Recorder interface {
	RecordRows(n int64)
	RecordBytes(n int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordRows(int64)  {}
func (nopRecorder) RecordBytes(int64) {}

// Continuation carries the unprocessed tail of a batch plus the pending
// cursor. It is serialized onto the notification topic and consumed by
// FetchAndStoreItems.
type Continuation struct {
	ItemIDs   []string `json:"ItemIds"`
	DeltaLink string   `json:"DeltaLink"`
}

// Result summarizes one committed run.
type Result struct {
	LogID        int64
	Succeeded    int
	Failed       int
	Skipped      int
	Duplicates   int
	DeltaLink    string
	LastError    string
	Continuation *Continuation
}

// Processed returns the number of items the run counted.
func (r *Result) Processed() int {
	return r.Succeeded + r.Failed
}

// Processor owns the ProcessingLog and ProcessedFile entities and is the
// only writer of the delta cursor. One call — one transaction.
type Processor struct {
	cfg      *config.Config
	db       Beginner
	registry *schema.Registry
	source   API
	writer   *warehouse.Writer
	logs     *ledger.LogStore
	files    *ledger.FileStore
	logger   zerolog.Logger
	rec      Recorder
	now      func() time.Time
}

func NewProcessor(cfg *config.Config, db Beginner, reg *schema.Registry, src API, logger zerolog.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		db:       db,
		registry: reg,
		source:   src,
		writer:   warehouse.NewWriter(cfg.Warehouse.Schema, logger),
		logs:     ledger.NewLogStore(cfg.Warehouse.Schema),
		files:    ledger.NewFileStore(cfg.Warehouse.Schema),
		logger:   logger.With().Str("component", "sync").Logger(),
		rec:      nopRecorder{},
		now:      time.Now,
	}
}

// SetRecorder wires a volume recorder into the processor.
func (p *Processor) SetRecorder(rec Recorder) {
	if rec != nil {
		p.rec = rec
	}
}

// SetClock replaces the processor's time source. Tests only.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// FetchAndStoreDelta pulls the delta from the stored cursor and processes up
// to batch_size items inside one transaction. When the Source reports the
// cursor expired, the run switches to a windowed resync and mints a fresh
// cursor. Ids beyond the batch bound come back as a Continuation; the
// pending cursor then travels with it instead of being committed.
func (p *Processor) FetchAndStoreDelta(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Sync.RunTimeout)
	defer cancel()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	site, list := p.cfg.Site.SiteID, p.cfg.Site.ListID

	cursor, ok, err := p.logs.LatestCursor(ctx, tx, site, list)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Never-initialized cursor: mint a fresh one with zero items.
		cursor = source.CursorLatest
	}

	newCursor, ids, err := p.source.PullItemsDelta(ctx, site, list, cursor)
	if errors.Is(err, source.ErrResyncRequired) {
		newCursor, ids, err = p.resyncWindow(ctx, tx)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Info().Int("items", len(ids)).Bool("fresh_cursor", !ok).Msg("delta pulled")
	return p.runBatch(ctx, tx, ids, newCursor, true)
}

// FetchAndStoreItems processes a continuation chunk. The cursor is written
// only when finalize is true and no remainder is left; otherwise it keeps
// traveling with the next continuation.
func (p *Processor) FetchAndStoreItems(ctx context.Context, ids []string, cursor string, finalize bool) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Sync.RunTimeout)
	defer cancel()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	return p.runBatch(ctx, tx, ids, cursor, finalize)
}

// Resync processes every item modified at or after since and finalizes a
// fresh cursor. Driven by the resync subcommand and the ops job API.
func (p *Processor) Resync(ctx context.Context, since time.Time) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Sync.RunTimeout)
	defer cancel()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	site, list := p.cfg.Site.SiteID, p.cfg.Site.ListID
	ids, err := p.source.PullItemsModifiedSince(ctx, site, list, since)
	if err != nil {
		return nil, err
	}
	cursor, _, err := p.source.PullItemsDelta(ctx, site, list, source.CursorLatest)
	if err != nil {
		return nil, err
	}

	p.logger.Info().Time("since", since).Int("items", len(ids)).Msg("windowed resync pulled")
	return p.runBatch(ctx, tx, ids, cursor, true)
}

// resyncWindow handles a cursor the Source declared expired: re-list items
// modified since last_processed_at minus the configured window, then mint a
// fresh cursor to commit with the run.
func (p *Processor) resyncWindow(ctx context.Context, tx pgx.Tx) (string, []string, error) {
	site, list := p.cfg.Site.SiteID, p.cfg.Site.ListID

	since := p.now().UTC()
	if last, ok, err := p.logs.Latest(ctx, tx, site, list); err != nil {
		return "", nil, err
	} else if ok {
		since = last.LastProcessedAt
	}
	since = since.Add(-p.cfg.ResyncWindow())

	p.logger.Warn().Time("since", since).Msg("cursor expired, resyncing window")

	ids, err := p.source.PullItemsModifiedSince(ctx, site, list, since)
	if err != nil {
		return "", nil, err
	}
	cursor, _, err := p.source.PullItemsDelta(ctx, site, list, source.CursorLatest)
	if err != nil {
		return "", nil, err
	}
	return cursor, ids, nil
}

// runBatch processes up to batch_size ids, writes the processing log row,
// and commits. Any per-item error aborts the whole run; the deferred
// rollback then discards every write including the log row.
func (p *Processor) runBatch(ctx context.Context, tx pgx.Tx, ids []string, cursor string, finalize bool) (*Result, error) {
	site, list := p.cfg.Site.SiteID, p.cfg.Site.ListID
	at := p.now().UTC()

	logID, err := p.logs.Create(ctx, tx, site, list, at)
	if err != nil {
		return nil, err
	}

	batch := ids
	var remainder []string
	if max := p.cfg.Sync.BatchSize; len(ids) > max {
		batch, remainder = ids[:max], ids[max:]
	}

	res := &Result{LogID: logID}
	for _, id := range batch {
		outcome, msg, err := p.fetchAndStoreItem(ctx, tx, id)
		if err != nil {
			if warehouse.IsConstraintViolation(err) {
				p.logger.Info().Str("item", id).Msg("lost ingest race, rolling back for redelivery")
			}
			return nil, fmt.Errorf("item %s: %w", id, err)
		}
		switch outcome {
		case outcomeStored:
			res.Succeeded++
		case outcomeFailed:
			res.Failed++
			if res.LastError == "" {
				res.LastError = msg
			}
		case outcomeDuplicate:
			res.Duplicates++
		case outcomeSkipped:
			res.Skipped++
		}
	}

	status := ledger.StatusCompleted
	if res.Failed > 0 {
		status = ledger.StatusFailed
	}

	// A partial run hands the pending cursor to its continuation instead of
	// committing it; the final chunk writes it.
	if len(remainder) == 0 && finalize {
		res.DeltaLink = cursor
	} else {
		res.Continuation = &Continuation{ItemIDs: remainder, DeltaLink: cursor}
	}

	err = p.logs.Finish(ctx, tx, logID, ledger.RunTotals{
		Status:    status,
		DeltaLink: res.DeltaLink,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		LastError: res.LastError,
		At:        at,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit run: %w", err)
	}

	p.logger.Info().
		Int64("log_id", logID).
		Str("status", string(status)).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Int("duplicates", res.Duplicates).
		Int("remaining", len(remainder)).
		Msg("run committed")
	return res, nil
}
