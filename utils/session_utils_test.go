package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSessionID_PassesSuppliedIDThrough(t *testing.T) {
	assert.Equal(t, "existing-session-123", ResolveSessionID("existing-session-123"))
}

func TestResolveSessionID_MintsUUIDWhenEmpty(t *testing.T) {
	id := ResolveSessionID("")
	require.NotEmpty(t, id)

	_, err := uuid.Parse(id)
	assert.NoError(t, err, "generated session ID should be a valid UUID")
}

func TestResolveSessionID_GeneratedIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := ResolveSessionID("")
		assert.False(t, seen[id], "generated a duplicate session ID: %s", id)
		seen[id] = true
	}
}
