package schema

import "testing"

func TestParseSQLType(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    TypeInfo
		wantErr bool
	}{
		{"text", "text", TypeInfo{Family: TypeText}, false},
		{"varchar with length", "varchar(40)", TypeInfo{Family: TypeText, Length: 40}, false},
		{"character varying", "character varying(255)", TypeInfo{Family: TypeText, Length: 255}, false},
		{"integer", "integer", TypeInfo{Family: TypeInteger}, false},
		{"int alias", "int", TypeInfo{Family: TypeInteger}, false},
		{"smallint folds to integer", "smallint", TypeInfo{Family: TypeInteger}, false},
		{"bigint", "bigint", TypeInfo{Family: TypeBigInt}, false},
		{"int8 alias", "int8", TypeInfo{Family: TypeBigInt}, false},
		{"numeric bare", "numeric", TypeInfo{Family: TypeNumeric}, false},
		{"numeric with precision", "numeric(18,2)", TypeInfo{Family: TypeNumeric, Precision: 18, Scale: 2}, false},
		{"decimal alias", "decimal(12,0)", TypeInfo{Family: TypeNumeric, Precision: 12, Scale: 0}, false},
		{"numeric precision only", "numeric(10)", TypeInfo{Family: TypeNumeric, Precision: 10}, false},
		{"date", "date", TypeInfo{Family: TypeDate}, false},
		{"timestamp", "timestamp", TypeInfo{Family: TypeTimestamp}, false},
		{"timestamp long form", "timestamp without time zone", TypeInfo{Family: TypeTimestamp}, false},
		{"boolean", "boolean", TypeInfo{Family: TypeBoolean}, false},
		{"bool alias", "BOOL", TypeInfo{Family: TypeBoolean}, false},
		{"case insensitive", "  VarChar(20) ", TypeInfo{Family: TypeText, Length: 20}, false},
		{"unknown type", "jsonb", TypeInfo{}, true},
		{"bad length", "varchar(abc)", TypeInfo{}, true},
		{"zero length", "varchar(0)", TypeInfo{}, true},
		{"scale above precision", "numeric(4,6)", TypeInfo{}, true},
		{"unbalanced parens", "numeric)18(", TypeInfo{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSQLType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSQLType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSQLType(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTypeFamilyString(t *testing.T) {
	if TypeNumeric.String() != "numeric" || TypeBoolean.String() != "boolean" {
		t.Error("TypeFamily.String returned unexpected labels")
	}
	if TypeFamily(99).String() != "unknown" {
		t.Error("out-of-range TypeFamily should stringify as unknown")
	}
}
