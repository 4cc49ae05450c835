package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/edgelake/sheetsink/internal/schema"
)

// numericPattern accepts plain decimal notation after thousands separators
// are stripped. Scientific notation is rejected so digit counting against
// the declared precision stays meaningful.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

var (
	dateLayouts = []string{
		"2006-01-02", "2006/01/02", "2006-1-2", "2006/1/2",
	}
	timestampLayouts = []string{
		"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006/01/02 15:04:05",
	}
)

// coerceCell converts one cell to the pgtype value for the column's type
// family. A blank cell becomes NULL for optional columns and an error for
// required ones. Timestamps carrying a zone offset are converted to UTC
// before the offset is dropped.
func coerceCell(col schema.ColumnSpec, info schema.TypeInfo, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		if col.Required {
			return nil, fmt.Errorf("column %q: required value is empty", col.DestColumn)
		}
		return nullFor(info.Family), nil
	}

	switch info.Family {
	case schema.TypeInteger:
		return coerceInt(col, s, 32)
	case schema.TypeBigInt:
		return coerceInt(col, s, 64)
	case schema.TypeNumeric:
		return coerceNumeric(col, info, s)
	case schema.TypeDate:
		return coerceDate(col, s)
	case schema.TypeTimestamp:
		return coerceTimestamp(col, s)
	case schema.TypeBoolean:
		return coerceBool(col, s)
	default:
		return coerceText(col, info, s)
	}
}

func nullFor(f schema.TypeFamily) any {
	switch f {
	case schema.TypeInteger:
		return pgtype.Int4{}
	case schema.TypeBigInt:
		return pgtype.Int8{}
	case schema.TypeNumeric:
		return pgtype.Numeric{}
	case schema.TypeDate:
		return pgtype.Date{}
	case schema.TypeTimestamp:
		return pgtype.Timestamp{}
	case schema.TypeBoolean:
		return pgtype.Bool{}
	default:
		return pgtype.Text{}
	}
}

func coerceText(col schema.ColumnSpec, info schema.TypeInfo, s string) (any, error) {
	limit := col.MaxLength
	if limit == 0 {
		limit = info.Length
	}
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		return nil, fmt.Errorf("column %q: value exceeds %d characters", col.DestColumn, limit)
	}
	return pgtype.Text{String: s, Valid: true}, nil
}

func coerceInt(col schema.ColumnSpec, s string, bits int) (any, error) {
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return nil, fmt.Errorf("column %q: %q is not a valid integer", col.DestColumn, s)
	}
	if bits == 32 {
		return pgtype.Int4{Int32: int32(n), Valid: true}, nil
	}
	return pgtype.Int8{Int64: n, Valid: true}, nil
}

func coerceNumeric(col schema.ColumnSpec, info schema.TypeInfo, s string) (any, error) {
	cleaned := strings.ReplaceAll(s, ",", "")
	if !numericPattern.MatchString(cleaned) {
		return nil, fmt.Errorf("column %q: %q is not a valid number", col.DestColumn, s)
	}
	if info.Precision > 0 && integerDigits(cleaned) > info.Precision-info.Scale {
		return nil, fmt.Errorf("column %q: %q overflows numeric(%d,%d)", col.DestColumn, s, info.Precision, info.Scale)
	}
	var n pgtype.Numeric
	if err := n.Scan(cleaned); err != nil {
		return nil, fmt.Errorf("column %q: %q is not a valid number", col.DestColumn, s)
	}
	return n, nil
}

// integerDigits counts the significant digits left of the decimal point.
// Excess fractional digits are not an error here; the destination rounds
// them on insert.
func integerDigits(s string) int {
	s = strings.TrimLeft(s, "+-")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return len(strings.TrimLeft(s, "0"))
}

func coerceDate(col schema.ColumnSpec, s string) (any, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}, nil
		}
	}
	return nil, fmt.Errorf("column %q: %q is not a valid date", col.DestColumn, s)
}

func coerceTimestamp(col schema.ColumnSpec, s string) (any, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Timestamp{Time: t, Valid: true}, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return pgtype.Timestamp{Time: t.UTC(), Valid: true}, nil
	}
	return nil, fmt.Errorf("column %q: %q is not a valid timestamp", col.DestColumn, s)
}

func coerceBool(col schema.ColumnSpec, s string) (any, error) {
	switch strings.ToLower(s) {
	case "true", "1":
		return pgtype.Bool{Bool: true, Valid: true}, nil
	case "false", "0":
		return pgtype.Bool{Bool: false, Valid: true}, nil
	}
	return nil, fmt.Errorf("column %q: %q is not a valid boolean", col.DestColumn, s)
}
