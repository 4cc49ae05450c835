package warehouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/normalize"
	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/tabular"
	"github.com/edgelake/sheetsink/internal/testutil"
	"github.com/edgelake/sheetsink/internal/warehouse"
)

func TestVerifyTables(t *testing.T) {
	pool := testutil.MustConnectPool(t, testutil.WarehouseDSN())
	schemaName := testutil.FreshSchema(t, pool)
	ctx := context.Background()

	reg, err := schema.NewRegistry(schema.Catalog())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if err := warehouse.VerifyTables(ctx, pool, reg, schemaName); err != nil {
		t.Fatalf("VerifyTables on freshly applied schema: %v", err)
	}

	// Dropping a declared column must surface as a verification error.
	_, err = pool.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s DROP COLUMN "contract_type"`,
		schema.QualifiedName(schemaName, "contract_creation")))
	if err != nil {
		t.Fatalf("drop column: %v", err)
	}
	if err := warehouse.VerifyTables(ctx, pool, reg, schemaName); err == nil {
		t.Error("VerifyTables passed with a missing column")
	}

	if err := warehouse.VerifyTables(ctx, pool, reg, "no_such_schema"); err == nil {
		t.Error("VerifyTables passed against an absent schema")
	}
}

func TestWriterRoundTrip(t *testing.T) {
	pool := testutil.MustConnectPool(t, testutil.WarehouseDSN())
	schemaName := testutil.FreshSchema(t, pool)
	ctx := context.Background()

	reg, err := schema.NewRegistry(schema.Catalog())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	spec, ok := reg.SpecBySheet("新規to業務管理")
	if !ok {
		t.Fatal("catalog is missing the contract creation sheet")
	}

	nt, err := normalize.Normalize(spec, &tabular.Table{
		SheetName: spec.SheetName,
		Headers:   []string{"契約ID", "物件No", "出力日時"},
		Rows: [][]string{
			{"C001", "123", "2024-01-01T10:00:00"},
			{"C002", "124", "2024-01-01T11:30:00"},
		},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	w := warehouse.NewWriter(schemaName, zerolog.Nop())
	data := []byte("workbook-bytes")
	fp := ledger.Compute(data)

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	fileID, err := w.Write(ctx, tx, ledger.ProcessedFile{
		FileName:      "a.xlsx",
		SourceItemID:  "9",
		FileHash:      fp.Hash,
		FileSizeBytes: fp.Size,
		ProcessedAt:   time.Now().UTC(),
		Status:        ledger.FileSuccess,
		RecordCount:   len(nt.Rows),
	}, []*normalize.NormalizedTable{nt})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if fileID == 0 {
		t.Fatal("Write returned file id 0")
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	qt := schema.QualifiedName(schemaName, "contract_creation")
	var count int
	err = pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE processed_file_id = $1", qt), fileID).Scan(&count)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("destination rows = %d, want 2", count)
	}

	var contractID string
	var propertyNo int64
	var reportedAt time.Time
	err = pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT "contract_id", "property_no", "reported_at" FROM %s ORDER BY id LIMIT 1`, qt)).
		Scan(&contractID, &propertyNo, &reportedAt)
	if err != nil {
		t.Fatalf("read back row: %v", err)
	}
	if contractID != "C001" || propertyNo != 123 {
		t.Errorf("row = (%s, %d), want (C001, 123)", contractID, propertyNo)
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if !reportedAt.Equal(want) {
		t.Errorf("reported_at = %v, want %v", reportedAt, want)
	}

	// A rolled back transaction leaves nothing behind.
	tx2, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	fp2 := ledger.Compute([]byte("other-bytes"))
	if _, err := w.Write(ctx, tx2, ledger.ProcessedFile{
		FileName: "b.xlsx", FileHash: fp2.Hash, FileSizeBytes: fp2.Size,
		ProcessedAt: time.Now().UTC(), Status: ledger.FileSuccess, RecordCount: len(nt.Rows),
	}, []*normalize.NormalizedTable{nt}); err != nil {
		t.Fatalf("Write in second tx: %v", err)
	}
	if err := tx2.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	files := ledger.NewFileStore(schemaName)
	seen, err := files.Seen(ctx, pool, fp2)
	if err != nil {
		t.Fatalf("Seen: %v", err)
	}
	if seen {
		t.Error("rolled back file is visible in the ledger")
	}
}
