// Package auth holds token hashing for the admin API surface.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken digests an API token for comparison or storage; raw tokens are
// never persisted or compared directly.
func HashToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
