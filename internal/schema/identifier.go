package schema

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxIdentifierLen = 63

// reservedWords is the closed set of destination keywords a column identifier
// may not collide with, compared case-insensitively.
var reservedWords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "insert": {}, "update": {},
	"delete": {}, "create": {}, "drop": {}, "alter": {}, "table": {},
	"column": {}, "index": {}, "primary": {}, "foreign": {}, "key": {},
	"constraint": {}, "null": {}, "not": {}, "unique": {}, "default": {},
	"check": {}, "references": {}, "on": {}, "cascade": {}, "restrict": {},
	"set": {}, "user": {}, "order": {}, "group": {}, "having": {},
	"union": {}, "join": {}, "inner": {}, "left": {}, "right": {},
	"full": {}, "outer": {}, "cross": {}, "natural": {}, "using": {},
	"as": {}, "distinct": {}, "all": {}, "any": {}, "some": {},
	"exists": {}, "in": {}, "between": {}, "like": {}, "ilike": {},
	"similar": {}, "is": {}, "and": {}, "or": {}, "case": {},
	"when": {}, "then": {}, "else": {}, "end": {},
}

// ValidateIdentifier applies the destination's identifier rules to a column
// header or name. The goal is to exclude identifiers that cannot be safely
// quoted, not to impose a naming style: CJK and Latin text, spaces,
// parentheses, hyphens, '@', '#' and dots all pass.
func ValidateIdentifier(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errors.New("identifier is empty")
	}
	if utf8.RuneCountInString(name) > maxIdentifierLen {
		return fmt.Errorf("identifier %q exceeds %d characters", name, maxIdentifierLen)
	}
	first, _ := utf8.DecodeRuneInString(trimmed)
	if first >= '0' && first <= '9' {
		return fmt.Errorf("identifier %q starts with a digit", name)
	}
	for _, r := range name {
		if r < ' ' && r != '\t' {
			return fmt.Errorf("identifier %q contains a control character", name)
		}
	}
	if _, ok := reservedWords[strings.ToLower(trimmed)]; ok {
		return fmt.Errorf("identifier %q is a reserved word", name)
	}
	return nil
}

// QuoteIdent quotes an identifier for interpolation into DDL and SQL text.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QualifiedName returns schema.table with both parts quoted.
func QualifiedName(schemaName, table string) string {
	return QuoteIdent(schemaName) + "." + QuoteIdent(table)
}
