package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgelake/sheetsink/internal/stats"
	syncer "github.com/edgelake/sheetsink/internal/sync"
)

// Syncer is the slice of the sync processor the job manager drives.
type Syncer interface {
	FetchAndStoreDelta(ctx context.Context) (*syncer.Result, error)
	FetchAndStoreItems(ctx context.Context, ids []string, cursor string, finalize bool) (*syncer.Result, error)
	Resync(ctx context.Context, since time.Time) (*syncer.Result, error)
}

// JobManager runs one-off sync operations submitted over the ops API.
// Only one job can run at a time; the consumer loop is unaffected.
type JobManager struct {
	logger    zerolog.Logger
	collector *stats.Collector
	proc      Syncer

	mu      sync.Mutex
	cancel  context.CancelFunc
	jobErr  error
	jobName string
	running bool
}

// NewJobManager creates a new JobManager.
func NewJobManager(proc Syncer, collector *stats.Collector, logger zerolog.Logger) *JobManager {
	return &JobManager{
		logger:    logger.With().Str("component", "job-manager").Logger(),
		collector: collector,
		proc:      proc,
	}
}

// IsRunning returns true if a job is currently active.
func (jm *JobManager) IsRunning() bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.running
}

// CurrentJob returns the name of the active job, or "" when idle.
func (jm *JobManager) CurrentJob() string {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.jobName
}

// LastError returns the error from the last completed job (nil if success
// or still running).
func (jm *JobManager) LastError() error {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.jobErr
}

// RunResync starts a windowed resync in the background.
func (jm *JobManager) RunResync(parentCtx context.Context, since time.Time) error {
	return jm.start(parentCtx, "resync", func(ctx context.Context) error {
		res, err := jm.proc.Resync(ctx, since)
		if err != nil {
			return err
		}
		jm.record(res)
		return nil
	})
}

// RunItems starts an explicit item-list run in the background. Continuations
// are drained inline: each chunk commits its own transaction.
func (jm *JobManager) RunItems(parentCtx context.Context, ids []string, cursor string) error {
	return jm.start(parentCtx, "items", func(ctx context.Context) error {
		for len(ids) > 0 {
			res, err := jm.proc.FetchAndStoreItems(ctx, ids, cursor, true)
			if err != nil {
				return err
			}
			jm.record(res)
			if res.Continuation == nil {
				return nil
			}
			ids, cursor = res.Continuation.ItemIDs, res.Continuation.DeltaLink
		}
		return nil
	})
}

// RunDelta starts a one-shot delta pull in the background.
func (jm *JobManager) RunDelta(parentCtx context.Context) error {
	return jm.start(parentCtx, "delta", func(ctx context.Context) error {
		res, err := jm.proc.FetchAndStoreDelta(ctx)
		if err != nil {
			return err
		}
		jm.record(res)
		return nil
	})
}

// StopJob cancels the currently running job.
func (jm *JobManager) StopJob() error {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if !jm.running || jm.cancel == nil {
		return fmt.Errorf("no job is running")
	}
	jm.cancel()
	return nil
}

// Collector returns the shared stats collector.
func (jm *JobManager) Collector() *stats.Collector {
	return jm.collector
}

func (jm *JobManager) start(parentCtx context.Context, name string, run func(context.Context) error) error {
	jm.mu.Lock()
	if jm.running {
		jm.mu.Unlock()
		return fmt.Errorf("a job is already running")
	}
	ctx, cancel := context.WithCancel(parentCtx)
	jm.running = true
	jm.jobErr = nil
	jm.jobName = name
	jm.cancel = cancel
	jm.mu.Unlock()

	go func() {
		err := run(ctx)
		cancel()

		jm.mu.Lock()
		jm.running = false
		jm.jobErr = err
		jm.jobName = ""
		jm.cancel = nil
		jm.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			jm.logger.Err(err).Str("job", name).Msg("job finished with error")
		} else {
			jm.logger.Info().Str("job", name).Msg("job finished")
		}
	}()

	return nil
}

func (jm *JobManager) record(res *syncer.Result) {
	if jm.collector != nil && res != nil {
		jm.collector.RecordRun(res.Succeeded, res.Failed, res.Skipped, res.Duplicates)
	}
}
