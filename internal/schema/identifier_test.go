package schema

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		ident   string
		wantErr bool
	}{
		{"plain ascii", "contract_id", false},
		{"japanese", "契約ID", false},
		{"japanese with to", "新規to業務管理", false},
		{"spaces allowed", "Output Date", false},
		{"parentheses allowed", "金額(税込)", false},
		{"hyphen allowed", "item-no", false},
		{"at sign allowed", "price@close", false},
		{"hash allowed", "lot#", false},
		{"dots allowed", "a.b.c", false},
		{"tab allowed", "a\tb", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("x", 64), true},
		{"63 runes ok", strings.Repeat("x", 63), false},
		{"63 cjk runes ok", strings.Repeat("契", 63), false},
		{"leading digit", "1st_column", true},
		{"leading digit after space", " 1st", true},
		{"newline control char", "a\nb", true},
		{"bell control char", "a\x07b", true},
		{"reserved lower", "select", true},
		{"reserved upper", "SELECT", true},
		{"reserved mixed", "Order", true},
		{"reserved user", "user", true},
		{"non-reserved superstring", "selected", false},
		{"non-reserved user_id", "user_id", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.ident)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.ident, err, tt.wantErr)
			}
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", `"plain"`},
		{`with"quote`, `"with""quote"`},
		{"契約ID", `"契約ID"`},
	}

	for _, tt := range tests {
		if got := QuoteIdent(tt.in); got != tt.want {
			t.Errorf("QuoteIdent(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQualifiedName(t *testing.T) {
	got := QualifiedName("edges_raw", "contract_creation")
	want := `"edges_raw"."contract_creation"`
	if got != want {
		t.Errorf("QualifiedName = %s, want %s", got, want)
	}
}
