package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	stateDir      = ".sheetsink"
	stateFile     = "state.json"
	writeInterval = 2 * time.Second
)

// StatePersister mirrors the collector's Snapshot into a JSON file on a
// fixed cadence, so `sheetsink status` and a standalone `sheetsink serve`
// can report counters without a live consumer to ask.
type StatePersister struct {
	collector *Collector
	logger    zerolog.Logger
	path      string
	done      chan struct{}
	stopOnce  sync.Once
}

// NewStatePersister creates a persister that writes to ~/.sheetsink/state.json.
func NewStatePersister(collector *Collector, logger zerolog.Logger) (*StatePersister, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &StatePersister{
		collector: collector,
		logger:    logger.With().Str("component", "state-persister").Logger(),
		path:      path,
		done:      make(chan struct{}),
	}, nil
}

// Path returns the state file path.
func (sp *StatePersister) Path() string {
	return sp.path
}

// Start begins the periodic writes. The first snapshot lands immediately so
// a fresh daemon is visible to `status` right away.
func (sp *StatePersister) Start() {
	sp.write()
	go func() {
		ticker := time.NewTicker(writeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sp.done:
				return
			case <-ticker.C:
				sp.write()
			}
		}
	}()
}

// Stop halts the persister and flushes a final snapshot. Safe to call more
// than once.
func (sp *StatePersister) Stop() {
	sp.stopOnce.Do(func() { close(sp.done) })
	sp.write()
}

// write replaces the state file atomically: the snapshot goes to a temp
// file in the same directory first, then renames over the old one, so a
// concurrent reader never sees a torn file.
func (sp *StatePersister) write() {
	snap := sp.collector.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		sp.logger.Err(err).Msg("marshal state")
		return
	}
	tmp := sp.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		sp.logger.Err(err).Msg("write state file")
		return
	}
	if err := os.Rename(tmp, sp.path); err != nil {
		sp.logger.Err(err).Msg("rename state file")
	}
}

// ReadStateFile loads the last-persisted Snapshot.
func ReadStateFile() (*Snapshot, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", path, err)
	}
	return &snap, nil
}

func statePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, stateDir, stateFile), nil
}
