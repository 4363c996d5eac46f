package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Key joins key parts with ":" into a cache key, e.g.
// Key("simple", "requests") is "simple:requests".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
