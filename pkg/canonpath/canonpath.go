package canonpath

import (
	"net/url"
	"strings"
)

// Canonical normalizes a drive parent path so it can be compared against the
// configured watched folder by plain string equality. Raw paths come back
// from the Source in the form "/sites/Fin/drive/root:/Shared%20Documents/Acc":
// the drive addressing always ends in "root:", and everything after that
// colon is the folder path. The strip fires only on that shape, so a colon
// inside a folder name survives. The folder part is URL-decoded, backslashes
// are folded to forward slashes, a trailing slash is trimmed, and the result
// is lower-cased. Calling Canonical on an already-canonical path is a no-op,
// except for folder names that themselves contain a "root:" segment or a
// literal percent-escape sequence, which a second pass transforms again.
func Canonical(raw string) string {
	s := raw
	if i := strings.IndexByte(s, ':'); i >= 0 && strings.HasSuffix(strings.ToLower(s[:i]), "root") {
		s = s[i+1:]
	}
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	s = strings.ReplaceAll(s, `\`, "/")
	s = strings.TrimSuffix(s, "/")
	return strings.ToLower(s)
}

// Equal reports whether two paths refer to the same folder once both are
// canonicalized.
func Equal(a, b string) bool {
	return Canonical(a) == Canonical(b)
}
