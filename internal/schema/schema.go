package schema

// ColumnSpec describes one destination column and, when the column is fed
// from the sheet, the exact header it is fed from.
type ColumnSpec struct {
	SourceHeader string // header text in the sheet's first row; empty for pipeline-populated columns
	DestColumn   string
	SQLType      string
	Required     bool
	Key          bool
	Indexed      bool
	MaxLength    int // rune limit for text columns; 0 = unbounded
	Identity     bool
}

// FromSheet reports whether the column's values come out of the decoded sheet.
func (c ColumnSpec) FromSheet() bool {
	return c.SourceHeader != ""
}

// TableSpec binds one sheet name to one destination table. Matching is by
// exact sheet name; column order here is the order rows are written in.
type TableSpec struct {
	SheetName  string
	TableName  string
	SchemaName string // empty = the configured warehouse schema
	Columns    []ColumnSpec
}

// Schema returns the table's schema name, falling back to def when the spec
// does not pin one.
func (t TableSpec) Schema(def string) string {
	if t.SchemaName != "" {
		return t.SchemaName
	}
	return def
}

// Qualified returns the quoted schema-qualified table name.
func (t TableSpec) Qualified(def string) string {
	return QualifiedName(t.Schema(def), t.TableName)
}

// SheetColumns returns the columns populated from the sheet, in declared
// order.
func (t TableSpec) SheetColumns() []ColumnSpec {
	out := make([]ColumnSpec, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.FromSheet() {
			out = append(out, c)
		}
	}
	return out
}

// KeyColumns returns the columns marked as the table's key.
func (t TableSpec) KeyColumns() []ColumnSpec {
	var out []ColumnSpec
	for _, c := range t.Columns {
		if c.Key {
			out = append(out, c)
		}
	}
	return out
}
