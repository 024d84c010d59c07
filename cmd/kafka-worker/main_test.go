package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOccurredAt(t *testing.T) {
	ts := parseOccurredAt("2025-06-15T14:30:00+02:00")
	require.False(t, ts.IsZero())
	assert.Equal(t, time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC), ts)
}

func TestParseOccurredAtFallsBackToIngestTime(t *testing.T) {
	assert.True(t, parseOccurredAt("").IsZero())
	assert.True(t, parseOccurredAt("last tuesday").IsZero())
	assert.True(t, parseOccurredAt("1718456400").IsZero())
}
