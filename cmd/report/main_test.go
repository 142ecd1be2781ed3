package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	start, end, err := parseWindow("", "", now)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), end)
	assert.Equal(t, now.Add(-24*time.Hour).UnixMilli(), start)

	start, end, err = parseWindow("2025-02-01T00:00:00Z", "2025-02-02T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1738368000000), start)
	assert.Equal(t, int64(1738454400000), end)

	_, _, err = parseWindow("2025-02-03T00:00:00Z", "2025-02-02T00:00:00Z", now)
	assert.Error(t, err)

	_, _, err = parseWindow("yesterday", "", now)
	assert.Error(t, err)
}
