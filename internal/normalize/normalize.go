// Package normalize projects decoded sheet tables onto their registered
// destination shape: headers are validated and matched against the table
// spec, columns are reordered to the declared order, and every cell is
// coerced to the destination column's type family.
package normalize

import (
	"fmt"
	"strings"

	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/tabular"
)

// RowError records one data row that could not be coerced. Row is the
// 1-based position within the sheet's data rows, counted after the header.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// NormalizedTable is one sheet's data in destination form. Columns holds the
// destination column names in declared order; every row in Rows carries one
// typed value per column. Rows that failed coercion are excluded from Rows
// and reported in RowErrors instead.
type NormalizedTable struct {
	Spec      schema.TableSpec
	Columns   []string
	Rows      [][]any
	RowErrors []RowError
}

// binding ties one destination column to its position in the sheet.
// src is -1 when the sheet omits an optional column.
type binding struct {
	col  schema.ColumnSpec
	info schema.TypeInfo
	src  int
}

// Normalize projects tbl onto spec. Header problems return a
// *schema.MismatchError: an invalid or duplicate header, a header the spec
// does not declare, or a missing required column. Per-row coercion failures
// do not fail the call; the offending rows are collected in RowErrors.
func Normalize(spec schema.TableSpec, tbl *tabular.Table) (*NormalizedTable, error) {
	byHeader := make(map[string]int, len(tbl.Headers))
	for i, h := range tbl.Headers {
		if err := schema.ValidateIdentifier(h); err != nil {
			return nil, mismatch(spec, fmt.Sprintf("header %q: %v", h, err))
		}
		h = strings.TrimSpace(h)
		if _, dup := byHeader[h]; dup {
			return nil, mismatch(spec, fmt.Sprintf("duplicate header %q", h))
		}
		byHeader[h] = i
	}

	sheetCols := spec.SheetColumns()
	bindings := make([]binding, 0, len(sheetCols))
	claimed := make(map[string]bool, len(sheetCols))
	for _, col := range sheetCols {
		info, err := schema.ParseSQLType(col.SQLType)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.DestColumn, err)
		}
		src, ok := byHeader[col.SourceHeader]
		if !ok {
			if col.Required {
				return nil, mismatch(spec, fmt.Sprintf("missing required column %q", col.SourceHeader))
			}
			src = -1
		}
		claimed[col.SourceHeader] = true
		bindings = append(bindings, binding{col: col, info: info, src: src})
	}
	for _, h := range tbl.Headers {
		if !claimed[strings.TrimSpace(h)] {
			return nil, mismatch(spec, fmt.Sprintf("unexpected header %q", h))
		}
	}

	out := &NormalizedTable{
		Spec:    spec,
		Columns: make([]string, len(bindings)),
		Rows:    make([][]any, 0, len(tbl.Rows)),
	}
	for i, b := range bindings {
		out.Columns[i] = b.col.DestColumn
	}

	for i, row := range tbl.Rows {
		vals := make([]any, len(bindings))
		var rowErr error
		for j, b := range bindings {
			var raw string
			if b.src >= 0 && b.src < len(row) {
				raw = row[b.src]
			}
			v, err := coerceCell(b.col, b.info, raw)
			if err != nil {
				rowErr = err
				break
			}
			vals[j] = v
		}
		if rowErr != nil {
			out.RowErrors = append(out.RowErrors, RowError{Row: i + 1, Err: rowErr})
			continue
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, nil
}

func mismatch(spec schema.TableSpec, reason string) *schema.MismatchError {
	return &schema.MismatchError{Sheet: spec.SheetName, Table: spec.TableName, Reason: reason}
}
