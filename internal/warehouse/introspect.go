package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/schema"
)

var bookkeepingTables = []string{"processing_log", "processed_files", "poison_messages"}

// VerifyTables checks the live warehouse against the registry: every
// bookkeeping and destination table must exist, and every declared column
// must be present with a compatible type family. All problems are reported
// at once so one round of DDL can fix them.
func VerifyTables(ctx context.Context, db ledger.DBTX, reg *schema.Registry, schemaName string) error {
	live, err := liveColumns(ctx, db, schemaName)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range bookkeepingTables {
		if _, ok := live[name]; !ok {
			errs = append(errs, fmt.Errorf("table %q missing from schema %q", name, schemaName))
		}
	}

	for _, t := range reg.Tables() {
		cols, ok := live[t.TableName]
		if !ok {
			errs = append(errs, fmt.Errorf("table %q missing from schema %q", t.TableName, schemaName))
			continue
		}
		if _, ok := cols["processed_file_id"]; !ok {
			errs = append(errs, fmt.Errorf("table %q: column \"processed_file_id\" missing", t.TableName))
		}
		for _, c := range t.Columns {
			dataType, ok := cols[c.DestColumn]
			if !ok {
				errs = append(errs, fmt.Errorf("table %q: column %q missing", t.TableName, c.DestColumn))
				continue
			}
			want, err := schema.ParseSQLType(c.SQLType)
			if err != nil {
				errs = append(errs, fmt.Errorf("table %q: column %q: %w", t.TableName, c.DestColumn, err))
				continue
			}
			got, ok := familyOf(dataType)
			if !ok || got != want.Family {
				errs = append(errs, fmt.Errorf("table %q: column %q is %s, want %s",
					t.TableName, c.DestColumn, dataType, want.Family))
			}
		}
	}
	return errors.Join(errs...)
}

func liveColumns(ctx context.Context, db ledger.DBTX, schemaName string) (map[string]map[string]string, error) {
	rows, err := db.Query(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1
	`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("introspect schema %q: %w", schemaName, err)
	}
	defer rows.Close()

	live := make(map[string]map[string]string)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		if live[table] == nil {
			live[table] = make(map[string]string)
		}
		live[table][column] = dataType
	}
	return live, rows.Err()
}

func familyOf(dataType string) (schema.TypeFamily, bool) {
	switch dataType {
	case "smallint", "integer":
		return schema.TypeInteger, true
	case "bigint":
		return schema.TypeBigInt, true
	case "numeric":
		return schema.TypeNumeric, true
	case "date":
		return schema.TypeDate, true
	case "timestamp without time zone":
		return schema.TypeTimestamp, true
	case "boolean":
		return schema.TypeBoolean, true
	case "text", "character varying", "character":
		return schema.TypeText, true
	}
	return 0, false
}
