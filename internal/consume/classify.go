package consume

import (
	"errors"

	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/source"
	"github.com/edgelake/sheetsink/internal/tabular"
)

// archiveReason classifies a failed dispatch. A true return means the error
// cannot be fixed by redelivery (the payload or the artifact it points at is
// bad), so the message is archived and acknowledged. False means transient:
// the message stays uncommitted and the broker redelivers it.
func archiveReason(err error) (string, bool) {
	var mismatch *schema.MismatchError
	var decode *tabular.DecodeError
	var unavailable *source.UnavailableError

	switch {
	case errors.As(err, &mismatch):
		return "schema_mismatch", true
	case errors.As(err, &decode):
		return "decode_error", true
	case errors.As(err, &unavailable):
		return "source_unavailable", true
	}
	return "", false
}
