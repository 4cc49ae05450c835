package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edgelake/sheetsink/internal/schema"
)

type Status string

const (
	StatusStarted   Status = "Started"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// ProcessingLog is one committed orchestration run. delta_link holds the
// cursor the run finalized, or "" when the run handed its pending cursor to
// a continuation instead.
type ProcessingLog struct {
	ID                 int64     `json:"id"`
	SiteID             string    `json:"site_id"`
	ListID             string    `json:"list_id"`
	DeltaLink          string    `json:"delta_link"`
	LastProcessedAt    time.Time `json:"last_processed_at"`
	Status             Status    `json:"status"`
	SuccessfulItems    int       `json:"successful_items"`
	FailedItems        int       `json:"failed_items"`
	LastProcessedCount int       `json:"last_processed_count"`
	LastError          string    `json:"last_error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RunTotals carries the end-of-run update for a processing log row.
type RunTotals struct {
	Status    Status
	DeltaLink string
	Succeeded int
	Failed    int
	LastError string
	At        time.Time
}

type LogStore struct {
	schemaName string
}

func NewLogStore(schemaName string) *LogStore {
	return &LogStore{schemaName: schemaName}
}

func (s *LogStore) table() string {
	return schema.QualifiedName(s.schemaName, "processing_log")
}

// Create opens a run in status Started and returns its id. The row becomes
// visible only when the caller's transaction commits.
func (s *LogStore) Create(ctx context.Context, db DBTX, siteID, listID string, at time.Time) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (site_id, list_id, delta_link, last_processed_at, status)
		VALUES ($1, $2, '', $3, $4)
		RETURNING id
	`, s.table()), siteID, listID, at, StatusStarted).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create processing log: %w", err)
	}
	return id, nil
}

// Finish closes a run with its counters and, when the run finalized the
// cursor, the new delta link. last_processed_count is derived here so it can
// never drift from the two counters.
func (s *LogStore) Finish(ctx context.Context, db DBTX, id int64, t RunTotals) error {
	tag, err := db.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET
			delta_link = $2, status = $3, successful_items = $4, failed_items = $5,
			last_processed_count = $4 + $5, last_error = $6, last_processed_at = $7,
			updated_at = now()
		WHERE id = $1
	`, s.table()), id, t.DeltaLink, t.Status, t.Succeeded, t.Failed, t.LastError, t.At)
	if err != nil {
		return fmt.Errorf("finish processing log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("processing log not found")
	}
	return nil
}

// Latest returns the most recent run for (siteID, listID), committed or not
// yet finished. The second return is false when no run exists.
func (s *LogStore) Latest(ctx context.Context, db DBTX, siteID, listID string) (ProcessingLog, bool, error) {
	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT id, site_id, list_id, delta_link, last_processed_at, status,
		       successful_items, failed_items, last_processed_count, last_error,
		       created_at, updated_at
		FROM %s WHERE site_id = $1 AND list_id = $2
		ORDER BY id DESC LIMIT 1
	`, s.table()), siteID, listID)
	if err != nil {
		return ProcessingLog{}, false, fmt.Errorf("latest processing log: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return ProcessingLog{}, false, rows.Err()
	}
	l, err := scanLog(rows)
	if err != nil {
		return ProcessingLog{}, false, err
	}
	return l, true, nil
}

// LatestCursor returns the most recently finalized delta link for
// (siteID, listID). Runs that handed their cursor to a continuation store ""
// and are skipped. The second return is false when no cursor has ever been
// finalized; callers treat that as a never-initialized cursor.
func (s *LogStore) LatestCursor(ctx context.Context, db DBTX, siteID, listID string) (string, bool, error) {
	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT delta_link FROM %s
		WHERE site_id = $1 AND list_id = $2 AND delta_link <> ''
		ORDER BY id DESC LIMIT 1
	`, s.table()), siteID, listID)
	if err != nil {
		return "", false, fmt.Errorf("latest cursor: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}
	var link string
	if err := rows.Scan(&link); err != nil {
		return "", false, fmt.Errorf("scan cursor: %w", err)
	}
	return link, true, nil
}

// Recent lists the newest runs across all (site, list) pairs.
func (s *LogStore) Recent(ctx context.Context, db DBTX, limit int) ([]ProcessingLog, error) {
	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT id, site_id, list_id, delta_link, last_processed_at, status,
		       successful_items, failed_items, last_processed_count, last_error,
		       created_at, updated_at
		FROM %s ORDER BY id DESC LIMIT $1
	`, s.table()), limit)
	if err != nil {
		return nil, fmt.Errorf("recent processing logs: %w", err)
	}
	defer rows.Close()

	var list []ProcessingLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	if list == nil {
		list = []ProcessingLog{}
	}
	return list, rows.Err()
}

func scanLog(rows pgx.Rows) (ProcessingLog, error) {
	var l ProcessingLog
	err := rows.Scan(
		&l.ID, &l.SiteID, &l.ListID, &l.DeltaLink, &l.LastProcessedAt, &l.Status,
		&l.SuccessfulItems, &l.FailedItems, &l.LastProcessedCount, &l.LastError,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return ProcessingLog{}, fmt.Errorf("scan processing log: %w", err)
	}
	return l, nil
}
