// Package utils provides utility functions for the application.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// StableHash returns the sha256 hex digest of v after a canonical (key-sorted)
// JSON serialization, so logically identical payloads hash identically
// regardless of field order or cosmetic formatting.
func StableHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	// Round-trip through any so encoding/json re-emits object keys sorted.
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return "", err
	}

	canonical, err := json.Marshal(norm)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// KeyHash builds a deterministic idempotency key from the given parts joined by ':'.
func KeyHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}
