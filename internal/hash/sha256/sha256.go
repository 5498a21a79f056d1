// Package sha256 provides SHA-256 digests for deterministic file names.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct {
	short int
}

// New returns a hasher producing the full hex digest.
func New() *Hasher {
	return &Hasher{}
}

// NewShort returns a hasher that keeps the first n hex characters.
func NewShort(n int) *Hasher {
	return &Hasher{short: n}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if h.short > 0 && h.short < len(digest) {
		digest = digest[:h.short]
	}
	return digest, nil
}
