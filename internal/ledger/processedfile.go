package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edgelake/sheetsink/internal/schema"
)

type FileStatus string

const (
	FileSuccess FileStatus = "Success"
	FileFailed  FileStatus = "Failed"
)

// ProcessedFile is one ingested artifact. Rows with status Success take part
// in (hash, size) deduplication; Failed rows record what went wrong and do
// not block a corrected re-upload of the same bytes.
type ProcessedFile struct {
	ID            int64      `json:"id"`
	FileName      string     `json:"file_name"`
	SourceItemID  string     `json:"source_item_id"`
	FileHash      string     `json:"file_hash"`
	FileSizeBytes int64      `json:"file_size_bytes"`
	ProcessedAt   time.Time  `json:"processed_at"`
	Status        FileStatus `json:"status"`
	RecordCount   int        `json:"record_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

type FileStore struct {
	schemaName string
}

func NewFileStore(schemaName string) *FileStore {
	return &FileStore{schemaName: schemaName}
}

func (s *FileStore) table() string {
	return schema.QualifiedName(s.schemaName, "processed_files")
}

// Seen reports whether an artifact with this fingerprint was already
// ingested successfully.
func (s *FileStore) Seen(ctx context.Context, db DBTX, fp Fingerprint) (bool, error) {
	var seen bool
	err := db.QueryRow(ctx, fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE file_hash = $1 AND file_size_bytes = $2 AND status = $3
		)
	`, s.table()), fp.Hash, fp.Size, FileSuccess).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check processed file: %w", err)
	}
	return seen, nil
}

// Create inserts the ledger row for one artifact and returns its surrogate
// id so destination rows can reference it within the same transaction.
func (s *FileStore) Create(ctx context.Context, db DBTX, f ProcessedFile) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (file_name, source_item_id, file_hash, file_size_bytes,
		                processed_at, status, record_count, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, s.table()), f.FileName, f.SourceItemID, f.FileHash, f.FileSizeBytes,
		f.ProcessedAt, f.Status, f.RecordCount, f.ErrorMessage).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create processed file: %w", err)
	}
	return id, nil
}

// Recent lists the newest ledger rows.
func (s *FileStore) Recent(ctx context.Context, db DBTX, limit int) ([]ProcessedFile, error) {
	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT id, file_name, source_item_id, file_hash, file_size_bytes,
		       processed_at, status, record_count, error_message
		FROM %s ORDER BY id DESC LIMIT $1
	`, s.table()), limit)
	if err != nil {
		return nil, fmt.Errorf("recent processed files: %w", err)
	}
	defer rows.Close()

	var list []ProcessedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	if list == nil {
		list = []ProcessedFile{}
	}
	return list, rows.Err()
}

func scanFile(rows pgx.Rows) (ProcessedFile, error) {
	var f ProcessedFile
	err := rows.Scan(
		&f.ID, &f.FileName, &f.SourceItemID, &f.FileHash, &f.FileSizeBytes,
		&f.ProcessedAt, &f.Status, &f.RecordCount, &f.ErrorMessage,
	)
	if err != nil {
		return ProcessedFile{}, fmt.Errorf("scan processed file: %w", err)
	}
	return f, nil
}
