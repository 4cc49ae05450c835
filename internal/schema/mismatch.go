package schema

import "fmt"

// MismatchError reports a sheet that cannot be reconciled with the registry:
// an unregistered sheet name, an unexpected or invalid header, or a missing
// required column.
type MismatchError struct {
	Sheet  string
	Table  string
	Reason string
}

func (e *MismatchError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("sheet %q: %s", e.Sheet, e.Reason)
	}
	return fmt.Sprintf("sheet %q (table %q): %s", e.Sheet, e.Table, e.Reason)
}
