// Package consumer derives a stable consumer id from request headers, the
// default policy behind EventSanitizer's consumer_id field.
package consumer

import (
	"crypto/sha256"
	"encoding/hex"
)

// Identify prefers x-api-key verbatim, falls back to a hashed authorization
// header, else reports absent. headers is expected to already be keyed by
// lowercased header name.
func Identify(headers map[string]string) (string, bool) {
	if v, ok := headers["x-api-key"]; ok && v != "" {
		return v, true
	}
	if v, ok := headers["authorization"]; ok && v != "" {
		return "hash_" + hashPrefix(v), true
	}
	return "", false
}

func hashPrefix(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:12]
}
