package tabular

import "strings"

// Table is one decoded sheet: a header row plus raw string data rows. Cells
// are untyped; an absent or blank cell is the empty string.
type Table struct {
	SheetName string
	Headers   []string
	Rows      [][]string
}

// Dataset holds the non-empty sheets of one workbook in workbook order.
type Dataset struct {
	tables []*Table
	byName map[string]*Table
}

func newDataset() *Dataset {
	return &Dataset{byName: make(map[string]*Table)}
}

func (d *Dataset) add(t *Table) {
	d.tables = append(d.tables, t)
	d.byName[t.SheetName] = t
}

// Tables returns the decoded sheets in workbook order.
func (d *Dataset) Tables() []*Table {
	return d.tables
}

// Table returns the sheet with the given name.
func (d *Dataset) Table(name string) (*Table, bool) {
	t, ok := d.byName[name]
	return t, ok
}

// Empty reports whether the workbook produced no usable sheets.
func (d *Dataset) Empty() bool {
	return len(d.tables) == 0
}

// tableFromRows builds a Table from raw sheet rows. The first non-empty row
// becomes the header (trailing blank header cells are dropped); later rows
// are padded or truncated to the header width; fully blank rows are skipped.
// Returns nil for sheets with no usable header.
func tableFromRows(sheet string, rows [][]string) *Table {
	headerIdx := -1
	for i, row := range rows {
		if !rowEmpty(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil
	}

	headers := trimTrailingBlank(rows[headerIdx])
	if len(headers) == 0 {
		return nil
	}

	t := &Table{SheetName: sheet, Headers: headers}
	for _, row := range rows[headerIdx+1:] {
		if rowEmpty(row) {
			continue
		}
		cells := make([]string, len(headers))
		copy(cells, row)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	out := make([]string, end)
	copy(out, row[:end])
	return out
}
