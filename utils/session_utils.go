package utils

import "github.com/google/uuid"

// ResolveSessionID returns the caller-supplied session ID untouched when one
// was sent, and mints a fresh UUIDv4 otherwise. Supplied IDs are trusted
// as-is; there is no registry of known sessions to check against.
func ResolveSessionID(candidate string) string {
	if candidate != "" {
		return candidate
	}
	return uuid.NewString()
}
