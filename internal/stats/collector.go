// Package stats aggregates pipeline counters for the ops API, the state
// file, and the Prometheus exposition endpoint.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Snapshot is the complete stats state at a point in time.
type Snapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	Phase      string    `json:"phase"`
	ElapsedSec float64   `json:"elapsed_sec"`

	// Queue traffic
	MessagesConsumed int64 `json:"messages_consumed"`
	MessagesArchived int64 `json:"messages_archived"`
	Continuations    int64 `json:"continuations"`

	// Runs
	RunsCommitted int64  `json:"runs_committed"`
	LastRunAt     string `json:"last_run_at,omitempty"`

	// Items
	ItemsSucceeded int64 `json:"items_succeeded"`
	ItemsFailed    int64 `json:"items_failed"`
	ItemsSkipped   int64 `json:"items_skipped"`
	Duplicates     int64 `json:"duplicates"`

	// Volume
	RowsWritten     int64   `json:"rows_written"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	RowsPerSec      float64 `json:"rows_per_sec"`
	BytesPerSec     float64 `json:"bytes_per_sec"`

	// Errors
	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`
}

// LogEntry represents a log line captured for the ops API.
type LogEntry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Collector aggregates pipeline counters and provides snapshots for
// consumption by the HTTP API and the state persister.
type Collector struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	phase     string
	startedAt time.Time
	lastRunAt time.Time

	messagesConsumed atomic.Int64
	messagesArchived atomic.Int64
	continuations    atomic.Int64
	runsCommitted    atomic.Int64
	itemsSucceeded   atomic.Int64
	itemsFailed      atomic.Int64
	itemsSkipped     atomic.Int64
	duplicates       atomic.Int64
	rowsWritten      atomic.Int64
	bytesDownloaded  atomic.Int64

	errorCount atomic.Int64
	lastError  atomic.Value // string

	// Throughput tracking (sliding window).
	rowWindow  *slidingWindow
	byteWindow *slidingWindow

	// Subscribers for push-based updates.
	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}

	// Log ring buffer.
	logMu  sync.Mutex
	logs   []LogEntry
	logCap int

	done chan struct{}
}

// NewCollector creates a new Collector.
func NewCollector(logger zerolog.Logger) *Collector {
	c := &Collector{
		logger:      logger.With().Str("component", "stats").Logger(),
		subscribers: make(map[chan Snapshot]struct{}),
		rowWindow:   newSlidingWindow(60 * time.Second),
		byteWindow:  newSlidingWindow(60 * time.Second),
		logs:        make([]LogEntry, 0, 500),
		logCap:      500,
		done:        make(chan struct{}),
	}
	go c.broadcastLoop()
	return c
}

// SetPhase updates the current pipeline phase.
func (c *Collector) SetPhase(phase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
	if c.startedAt.IsZero() {
		c.startedAt = time.Now()
	}
}

// RecordMessage counts one consumed queue message.
func (c *Collector) RecordMessage() {
	c.messagesConsumed.Add(1)
	promMessagesConsumed.Inc()
}

// RecordArchived counts one message parked in the poison store.
func (c *Collector) RecordArchived(reason string) {
	c.messagesArchived.Add(1)
	promMessagesArchived.WithLabelValues(reason).Inc()
}

// RecordContinuation counts one re-enqueued continuation.
func (c *Collector) RecordContinuation() {
	c.continuations.Add(1)
	promContinuations.Inc()
}

// RecordRun records the per-item counters of one committed run.
func (c *Collector) RecordRun(succeeded, failed, skipped, duplicates int) {
	c.runsCommitted.Add(1)
	c.itemsSucceeded.Add(int64(succeeded))
	c.itemsFailed.Add(int64(failed))
	c.itemsSkipped.Add(int64(skipped))
	c.duplicates.Add(int64(duplicates))
	c.mu.Lock()
	c.lastRunAt = time.Now()
	c.mu.Unlock()
	promRunsCommitted.Inc()
	promItems.WithLabelValues("succeeded").Add(float64(succeeded))
	promItems.WithLabelValues("failed").Add(float64(failed))
	promItems.WithLabelValues("skipped").Add(float64(skipped))
	promItems.WithLabelValues("duplicate").Add(float64(duplicates))
}

// RecordRows records destination rows written by a committed run.
func (c *Collector) RecordRows(n int64) {
	c.rowsWritten.Add(n)
	c.rowWindow.Add(time.Now(), float64(n))
	promRowsWritten.Add(float64(n))
}

// RecordBytes records downloaded artifact bytes.
func (c *Collector) RecordBytes(n int64) {
	c.bytesDownloaded.Add(n)
	c.byteWindow.Add(time.Now(), float64(n))
	promBytesDownloaded.Add(float64(n))
}

// RecordError increments the error count and stores the last error message.
func (c *Collector) RecordError(err error) {
	c.errorCount.Add(1)
	promErrors.Inc()
	if err != nil {
		c.lastError.Store(err.Error())
	}
}

// AddLog appends a log entry to the ring buffer.
func (c *Collector) AddLog(entry LogEntry) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	if len(c.logs) >= c.logCap {
		// Shift buffer: drop oldest quarter.
		n := c.logCap / 4
		copy(c.logs, c.logs[n:])
		c.logs = c.logs[:len(c.logs)-n]
	}
	c.logs = append(c.logs, entry)
}

// Logs returns a copy of recent log entries.
func (c *Collector) Logs() []LogEntry {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	out := make([]LogEntry, len(c.logs))
	copy(out, c.logs)
	return out
}

// Snapshot returns the current stats state (thread-safe).
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var elapsed float64
	if !c.startedAt.IsZero() {
		elapsed = now.Sub(c.startedAt).Seconds()
	}

	var lastErr string
	if v := c.lastError.Load(); v != nil {
		lastErr = v.(string)
	}

	var lastRun string
	if !c.lastRunAt.IsZero() {
		lastRun = c.lastRunAt.UTC().Format(time.RFC3339)
	}

	return Snapshot{
		Timestamp:        now,
		Phase:            c.phase,
		ElapsedSec:       elapsed,
		MessagesConsumed: c.messagesConsumed.Load(),
		MessagesArchived: c.messagesArchived.Load(),
		Continuations:    c.continuations.Load(),
		RunsCommitted:    c.runsCommitted.Load(),
		LastRunAt:        lastRun,
		ItemsSucceeded:   c.itemsSucceeded.Load(),
		ItemsFailed:      c.itemsFailed.Load(),
		ItemsSkipped:     c.itemsSkipped.Load(),
		Duplicates:       c.duplicates.Load(),
		RowsWritten:      c.rowsWritten.Load(),
		BytesDownloaded:  c.bytesDownloaded.Load(),
		RowsPerSec:       c.rowWindow.Rate(),
		BytesPerSec:      c.byteWindow.Rate(),
		ErrorCount:       int(c.errorCount.Load()),
		LastError:        lastErr,
	}
}

// Subscribe returns a channel that receives periodic Snapshot updates.
func (c *Collector) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 4)
	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel.
func (c *Collector) Unsubscribe(ch chan Snapshot) {
	c.subMu.Lock()
	delete(c.subscribers, ch)
	c.subMu.Unlock()
}

// Close stops the broadcast loop.
func (c *Collector) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Collector) broadcastLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			snap := c.Snapshot()
			c.subMu.Lock()
			for ch := range c.subscribers {
				select {
				case ch <- snap:
				default:
					// Subscriber too slow, skip.
				}
			}
			c.subMu.Unlock()
		}
	}
}

// --- Sliding window for throughput calculation ---

type windowEntry struct {
	time  time.Time
	value float64
}

type slidingWindow struct {
	mu      sync.Mutex
	entries []windowEntry
	window  time.Duration
}

func newSlidingWindow(d time.Duration) *slidingWindow {
	return &slidingWindow{
		entries: make([]windowEntry, 0, 128),
		window:  d,
	}
}

func (w *slidingWindow) Add(t time.Time, val float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, windowEntry{time: t, value: val})
	w.evict(t)
}

func (w *slidingWindow) Rate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.evict(now)
	if len(w.entries) == 0 {
		return 0
	}
	var total float64
	for _, e := range w.entries {
		total += e.value
	}
	elapsed := now.Sub(w.entries[0].time).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return total / elapsed
}

func (w *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].time.Before(cutoff) {
		i++
	}
	if i > 0 {
		copy(w.entries, w.entries[i:])
		w.entries = w.entries[:len(w.entries)-i]
	}
}
