package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/edgelake/sheetsink/internal/schema"
)

func coerce(t *testing.T, sqlType string, required bool, maxLen int, in string) (any, error) {
	t.Helper()
	info, err := schema.ParseSQLType(sqlType)
	if err != nil {
		t.Fatalf("ParseSQLType(%q): %v", sqlType, err)
	}
	col := schema.ColumnSpec{DestColumn: "c", SQLType: sqlType, Required: required, MaxLength: maxLen}
	return coerceCell(col, info, in)
}

func TestCoerceIntegers(t *testing.T) {
	tests := []struct {
		name    string
		sqlType string
		in      string
		want    int64
		wantErr bool
	}{
		{name: "integer", sqlType: "integer", in: "42", want: 42},
		{name: "integer negative", sqlType: "integer", in: "-7", want: -7},
		{name: "integer with spaces", sqlType: "integer", in: "  12 ", want: 12},
		{name: "integer overflow", sqlType: "integer", in: "3000000000", wantErr: true},
		{name: "integer garbage", sqlType: "integer", in: "12a", wantErr: true},
		{name: "integer decimal point", sqlType: "integer", in: "1.5", wantErr: true},
		{name: "bigint", sqlType: "bigint", in: "3000000000", want: 3000000000},
		{name: "bigint garbage", sqlType: "bigint", in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(t, tt.sqlType, false, 0, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("coerce(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("coerce(%q): %v", tt.in, err)
			}
			switch v := got.(type) {
			case pgtype.Int4:
				if !v.Valid || int64(v.Int32) != tt.want {
					t.Errorf("got %+v, want %d", v, tt.want)
				}
			case pgtype.Int8:
				if !v.Valid || v.Int64 != tt.want {
					t.Errorf("got %+v, want %d", v, tt.want)
				}
			default:
				t.Errorf("got %T, want pgtype integer", got)
			}
		})
	}
}

func TestCoerceNumeric(t *testing.T) {
	tests := []struct {
		name    string
		sqlType string
		in      string
		want    string
		wantErr string
	}{
		{name: "plain", sqlType: "numeric(10,2)", in: "1250.00", want: "1250.00"},
		{name: "thousands separators", sqlType: "numeric(14,2)", in: "1,234,567.89", want: "1234567.89"},
		{name: "negative", sqlType: "numeric(10,2)", in: "-99.5", want: "-99.5"},
		{name: "leading dot", sqlType: "numeric(10,2)", in: ".5", want: ".5"},
		{name: "excess scale tolerated", sqlType: "numeric(4,2)", in: "9.999", want: "9.999"},
		{name: "integer digit overflow", sqlType: "numeric(4,2)", in: "123.45", wantErr: "overflows numeric(4,2)"},
		{name: "scientific rejected", sqlType: "numeric(10,2)", in: "1e3", wantErr: "not a valid number"},
		{name: "garbage", sqlType: "numeric(10,2)", in: "12..3", wantErr: "not a valid number"},
		{name: "unbounded numeric", sqlType: "numeric", in: "123456789012345678901234567890", want: "123456789012345678901234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(t, tt.sqlType, false, 0, tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("coerce(%q) err = %v, want %q", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("coerce(%q): %v", tt.in, err)
			}
			var want pgtype.Numeric
			if err := want.Scan(tt.want); err != nil {
				t.Fatalf("scan want %q: %v", tt.want, err)
			}
			n := got.(pgtype.Numeric)
			if !n.Valid || n.Int.Cmp(want.Int) != 0 || n.Exp != want.Exp {
				t.Errorf("got %+v, want %+v", n, want)
			}
		})
	}
}

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "iso", in: "2024-01-05", want: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{name: "slashes", in: "2024/01/05", want: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{name: "unpadded", in: "2024-1-5", want: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{name: "unpadded slashes", in: "2024/1/5", want: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{name: "month out of range", in: "2024-13-01", wantErr: true},
		{name: "not a date", in: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(t, "date", false, 0, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("coerce(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("coerce(%q): %v", tt.in, err)
			}
			d := got.(pgtype.Date)
			if !d.Valid || !d.Time.Equal(tt.want) {
				t.Errorf("got %+v, want %v", d, tt.want)
			}
		})
	}
}

func TestCoerceTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "t separator", in: "2024-01-01T10:00:00", want: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{name: "space separator", in: "2024-01-01 10:00:00", want: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{name: "fractional seconds", in: "2024-01-01T10:00:00.250", want: time.Date(2024, 1, 1, 10, 0, 0, 250000000, time.UTC)},
		{name: "zone offset folded to utc", in: "2024-06-01T09:00:00+09:00", want: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{name: "zulu", in: "2024-06-01T00:00:00Z", want: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{name: "date only is not a timestamp", in: "2024-06-01", wantErr: true},
		{name: "garbage", in: "noonish", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(t, "timestamp without time zone", false, 0, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("coerce(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("coerce(%q): %v", tt.in, err)
			}
			ts := got.(pgtype.Timestamp)
			if !ts.Valid || !ts.Time.Equal(tt.want) {
				t.Errorf("got %+v, want %v", ts, tt.want)
			}
		})
	}
}

func TestCoerceBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{in: "true", want: true},
		{in: "TRUE", want: true},
		{in: "1", want: true},
		{in: "false", want: false},
		{in: "False", want: false},
		{in: "0", want: false},
		{in: "yes", wantErr: true},
		{in: "no", wantErr: true},
		{in: "2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := coerce(t, "boolean", false, 0, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("coerce(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("coerce(%q): %v", tt.in, err)
			}
			b := got.(pgtype.Bool)
			if !b.Valid || b.Bool != tt.want {
				t.Errorf("got %+v, want %v", b, tt.want)
			}
		})
	}
}

func TestCoerceText(t *testing.T) {
	got, err := coerce(t, "varchar(3)", false, 3, "abc")
	if err != nil {
		t.Fatalf("coerce: %v", err)
	}
	if v := got.(pgtype.Text); !v.Valid || v.String != "abc" {
		t.Errorf("got %+v", v)
	}

	// Limits count runes, not bytes.
	if _, err := coerce(t, "varchar(3)", false, 3, "三文字"); err != nil {
		t.Errorf("three runes within varchar(3): %v", err)
	}
	if _, err := coerce(t, "varchar(3)", false, 3, "四文字です"); err == nil {
		t.Error("five runes should exceed varchar(3)")
	}

	if _, err := coerce(t, "text", false, 0, strings.Repeat("x", 10000)); err != nil {
		t.Errorf("unbounded text: %v", err)
	}
}

func TestCoerceBlank(t *testing.T) {
	families := []string{"integer", "bigint", "numeric(10,2)", "date", "timestamp", "boolean", "text"}

	for _, sqlType := range families {
		t.Run(sqlType, func(t *testing.T) {
			got, err := coerce(t, sqlType, false, 0, "   ")
			if err != nil {
				t.Fatalf("optional blank: %v", err)
			}
			switch v := got.(type) {
			case pgtype.Int4:
				if v.Valid {
					t.Errorf("got %+v, want NULL", v)
				}
			case pgtype.Int8:
				if v.Valid {
					t.Errorf("got %+v, want NULL", v)
				}
			case pgtype.Numeric:
				if v.Valid {
					t.Errorf("got %+v, want NULL", v)
				}
			case pgtype.Date:
				if v.Valid {
					t.Errorf("got %+v, want NULL", v)
				}
			case pgtype.Timestamp:
				if v.Valid {
					t.Errorf("got %+v, want NULL", v)
				}
			case pgtype.Bool:
				if v.Valid {
					t.Errorf("got %+v, want NULL", v)
				}
			case pgtype.Text:
				if v.Valid {
					t.Errorf("got %+v, want NULL", v)
				}
			default:
				t.Errorf("unexpected type %T", got)
			}

			if _, err := coerce(t, sqlType, true, 0, ""); err == nil {
				t.Error("required blank should error")
			}
		})
	}
}
