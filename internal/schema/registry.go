package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Registry is the immutable catalog of destination tables, keyed by exact
// sheet name. It is built once at start-up and is safe for concurrent
// readers.
type Registry struct {
	specs   []TableSpec
	bySheet map[string]int
}

// NewRegistry validates the given specs and builds the sheet lookup index.
// All validation problems are reported together.
func NewRegistry(specs []TableSpec) (*Registry, error) {
	r := &Registry{bySheet: make(map[string]int, len(specs))}
	var errs []error
	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := r.bySheet[spec.SheetName]; dup {
			errs = append(errs, fmt.Errorf("table %q: sheet %q already registered", spec.TableName, spec.SheetName))
			continue
		}
		r.bySheet[spec.SheetName] = len(r.specs)
		r.specs = append(r.specs, spec)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Tables returns the registered specs in declaration order.
func (r *Registry) Tables() []TableSpec {
	out := make([]TableSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// SpecBySheet returns the spec whose sheet name matches exactly.
func (r *Registry) SpecBySheet(sheet string) (TableSpec, bool) {
	i, ok := r.bySheet[sheet]
	if !ok {
		return TableSpec{}, false
	}
	return r.specs[i], true
}

func validateSpec(spec TableSpec) error {
	var errs []error
	if strings.TrimSpace(spec.SheetName) == "" {
		errs = append(errs, fmt.Errorf("table %q: empty sheet name", spec.TableName))
	}
	if err := ValidateIdentifier(spec.TableName); err != nil {
		errs = append(errs, fmt.Errorf("table %q: %w", spec.TableName, err))
	}
	if len(spec.Columns) == 0 {
		errs = append(errs, fmt.Errorf("table %q: no columns", spec.TableName))
	}

	cols := make(map[string]struct{}, len(spec.Columns))
	headers := make(map[string]struct{}, len(spec.Columns))
	for _, col := range spec.Columns {
		if err := ValidateIdentifier(col.DestColumn); err != nil {
			errs = append(errs, fmt.Errorf("table %q column %q: %w", spec.TableName, col.DestColumn, err))
		}
		if _, dup := cols[col.DestColumn]; dup {
			errs = append(errs, fmt.Errorf("table %q: duplicate column %q", spec.TableName, col.DestColumn))
		}
		cols[col.DestColumn] = struct{}{}

		if col.FromSheet() {
			if err := ValidateIdentifier(col.SourceHeader); err != nil {
				errs = append(errs, fmt.Errorf("table %q header %q: %w", spec.TableName, col.SourceHeader, err))
			}
			if _, dup := headers[col.SourceHeader]; dup {
				errs = append(errs, fmt.Errorf("table %q: duplicate source header %q", spec.TableName, col.SourceHeader))
			}
			headers[col.SourceHeader] = struct{}{}
		}
		if col.Identity && col.FromSheet() {
			errs = append(errs, fmt.Errorf("table %q column %q: identity columns cannot be sheet-fed", spec.TableName, col.DestColumn))
		}
		if col.Identity && col.Required {
			errs = append(errs, fmt.Errorf("table %q column %q: identity columns cannot be required", spec.TableName, col.DestColumn))
		}
		if _, err := ParseSQLType(col.SQLType); err != nil {
			errs = append(errs, fmt.Errorf("table %q column %q: %w", spec.TableName, col.DestColumn, err))
		}
	}
	return errors.Join(errs...)
}
