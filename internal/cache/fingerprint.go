package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// Fingerprint returns the deterministic cache key material for an AI task:
// a SHA-256 over the task kind and the normalized input. Identical inputs
// always map to the same fingerprint regardless of incidental whitespace.
func Fingerprint(kind models.TaskKind, input string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(input)))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize collapses runs of whitespace to single spaces and trims the
// ends, so semantically identical inputs fingerprint identically.
func Normalize(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
