package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/schema"
)

// BuildDDL renders the statements that bring a warehouse schema up from
// nothing: the schema itself, the bookkeeping tables, and one destination
// table per registry entry. Every statement is idempotent so a restart can
// re-run the whole list.
func BuildDDL(reg *schema.Registry, schemaName string) []string {
	qs := schema.QuoteIdent(schemaName)

	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", qs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.processing_log (
	id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	site_id text NOT NULL,
	list_id text NOT NULL,
	delta_link text NOT NULL DEFAULT '',
	last_processed_at timestamptz NOT NULL,
	status text NOT NULL,
	successful_items integer NOT NULL DEFAULT 0,
	failed_items integer NOT NULL DEFAULT 0,
	last_processed_count integer NOT NULL DEFAULT 0,
	last_error text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
)`, qs),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS processing_log_site_list_idx ON %s.processing_log (site_id, list_id, id DESC)", qs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.processed_files (
	id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	file_name text NOT NULL,
	source_item_id text NOT NULL DEFAULT '',
	file_hash text NOT NULL,
	file_size_bytes bigint NOT NULL,
	processed_at timestamptz NOT NULL,
	status text NOT NULL,
	record_count integer NOT NULL DEFAULT 0,
	error_message text NOT NULL DEFAULT ''
)`, qs),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS processed_files_hash_size_key ON %s.processed_files (file_hash, file_size_bytes) WHERE status = 'Success'", qs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.poison_messages (
	id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	topic text NOT NULL,
	partition_id integer NOT NULL,
	msg_offset bigint NOT NULL,
	message_key bytea,
	payload bytea NOT NULL,
	reason text NOT NULL,
	archived_at timestamptz NOT NULL DEFAULT now()
)`, qs),
	}

	for _, t := range reg.Tables() {
		stmts = append(stmts, tableDDL(t, schemaName)...)
	}
	return stmts
}

func tableDDL(t schema.TableSpec, defSchema string) []string {
	qs := schema.QuoteIdent(t.Schema(defSchema))
	qt := t.Qualified(defSchema)

	var identity, rest []string
	for _, c := range t.Columns {
		if c.Identity {
			identity = append(identity, fmt.Sprintf("\t%s %s GENERATED ALWAYS AS IDENTITY PRIMARY KEY",
				schema.QuoteIdent(c.DestColumn), c.SQLType))
			continue
		}
		line := fmt.Sprintf("\t%s %s", schema.QuoteIdent(c.DestColumn), c.SQLType)
		if c.Required {
			line += " NOT NULL"
		}
		rest = append(rest, line)
	}

	cols := identity
	cols = append(cols, fmt.Sprintf("\tprocessed_file_id bigint NOT NULL REFERENCES %s.processed_files (id)", qs))
	cols = append(cols, rest...)

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", qt, strings.Join(cols, ",\n"))}
	stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (processed_file_id)",
		schema.QuoteIdent(t.TableName+"_processed_file_id_idx"), qt))
	for _, c := range t.Columns {
		if !c.Indexed {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			schema.QuoteIdent(t.TableName+"_"+c.DestColumn+"_idx"), qt, schema.QuoteIdent(c.DestColumn)))
	}
	return stmts
}

// Apply runs the full DDL list against db. Destination DDL is expected to
// run once at deploy time or under a migrate command, never during message
// processing.
func Apply(ctx context.Context, db ledger.DBTX, reg *schema.Registry, schemaName string) error {
	for _, stmt := range BuildDDL(reg, schemaName) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w\n%s", err, stmt)
		}
	}
	return nil
}
