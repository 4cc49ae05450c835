package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint identifies a downloaded artifact by content. Dedup is on the
// (hash, size) pair so a length-preserving collision alone cannot cause a
// false skip.
type Fingerprint struct {
	Hash string
	Size int64
}

// Compute fingerprints the full byte stream with SHA-256.
func Compute(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint{Hash: hex.EncodeToString(sum[:]), Size: int64(len(data))}
}
