package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
)

// Hasher computes content hashes for module sources.
//
// Hashes are always computed over raw, unmodified bytes. Any normalization
// before hashing would break pinning against independently published digests.
type Hasher struct {
	algorithm Algorithm
}

// New creates a hasher with the specified algorithm
func New(algorithm Algorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// Default returns a hasher with the default algorithm
func Default() *Hasher {
	return New(SHA256)
}

// Sum computes the hex digest of the input bytes
func (h *Hasher) Sum(data []byte) string {
	switch h.algorithm {
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// SumString computes the hex digest of a string
func (h *Hasher) SumString(s string) string {
	return h.Sum([]byte(s))
}

// Equal compares two hex digests case-insensitively in a form-insensitive way
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Short returns an 8-character prefix for display
func Short(digest string) string {
	if len(digest) < 8 {
		return digest
	}
	return digest[:8]
}
