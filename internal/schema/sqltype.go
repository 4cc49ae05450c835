package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeFamily classifies a destination SQL type into the coercion family the
// normalizer understands.
type TypeFamily int

const (
	TypeText TypeFamily = iota
	TypeInteger
	TypeBigInt
	TypeNumeric
	TypeDate
	TypeTimestamp
	TypeBoolean
)

func (f TypeFamily) String() string {
	switch f {
	case TypeText:
		return "text"
	case TypeInteger:
		return "integer"
	case TypeBigInt:
		return "bigint"
	case TypeNumeric:
		return "numeric"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// TypeInfo is the parsed form of a ColumnSpec.SQLType declaration.
type TypeInfo struct {
	Family    TypeFamily
	Precision int // numeric only
	Scale     int // numeric only
	Length    int // varchar only; 0 = unbounded
}

// ParseSQLType parses a destination type declaration such as "bigint",
// "numeric(18,2)", "varchar(40)" or "timestamp without time zone".
func ParseSQLType(s string) (TypeInfo, error) {
	base := strings.ToLower(strings.TrimSpace(s))
	var args string
	if i := strings.IndexByte(base, '('); i >= 0 {
		j := strings.IndexByte(base, ')')
		if j < i {
			return TypeInfo{}, fmt.Errorf("malformed sql type %q", s)
		}
		args = base[i+1 : j]
		base = strings.TrimSpace(base[:i])
	}

	switch base {
	case "text":
		return TypeInfo{Family: TypeText}, nil
	case "varchar", "character varying", "char", "character":
		info := TypeInfo{Family: TypeText}
		if args != "" {
			n, err := strconv.Atoi(strings.TrimSpace(args))
			if err != nil || n <= 0 {
				return TypeInfo{}, fmt.Errorf("malformed length in sql type %q", s)
			}
			info.Length = n
		}
		return info, nil
	case "smallint", "int2", "int", "integer", "int4":
		return TypeInfo{Family: TypeInteger}, nil
	case "bigint", "int8":
		return TypeInfo{Family: TypeBigInt}, nil
	case "numeric", "decimal":
		info := TypeInfo{Family: TypeNumeric}
		if args != "" {
			parts := strings.SplitN(args, ",", 2)
			p, err := strconv.Atoi(strings.TrimSpace(parts[0]))
			if err != nil || p <= 0 {
				return TypeInfo{}, fmt.Errorf("malformed precision in sql type %q", s)
			}
			info.Precision = p
			if len(parts) == 2 {
				sc, err := strconv.Atoi(strings.TrimSpace(parts[1]))
				if err != nil || sc < 0 || sc > p {
					return TypeInfo{}, fmt.Errorf("malformed scale in sql type %q", s)
				}
				info.Scale = sc
			}
		}
		return info, nil
	case "date":
		return TypeInfo{Family: TypeDate}, nil
	case "timestamp", "timestamp without time zone":
		return TypeInfo{Family: TypeTimestamp}, nil
	case "boolean", "bool":
		return TypeInfo{Family: TypeBoolean}, nil
	default:
		return TypeInfo{}, fmt.Errorf("unsupported sql type %q", s)
	}
}
