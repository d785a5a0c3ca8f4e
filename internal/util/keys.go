package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// StorageKey returns prefix + ":" + the first 16 hex chars of sha256(canonical).
// Query keys can be long and contain arbitrary text; providers get a short,
// fixed-size key instead.
func StorageKey(prefix, canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return prefix + ":" + hex.EncodeToString(sum[:8])
}
