package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// StableID derives an id from value, so the same value always maps to the
// same id. Case and surrounding space are ignored.
func StableID(prefix, value string) string {
	sum := blake3.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return prefix + "_" + hex.EncodeToString(sum[:10])
}
