package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteUtilization_HeaderAndPerDimensionRows(t *testing.T) {
	samples := []DimensionSample{
		{Dim: 0, RunningStreams: 2, Capacity: 4},
		{Dim: 0, RunningStreams: 4, Capacity: 4},
		{Dim: 1, RunningStreams: 1, Capacity: 2},
	}
	var buf strings.Builder
	require.NoError(t, WriteUtilization(&buf, samples))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3) // header + dim 0 + dim 1
	assert.Equal(t, "dim,p50,p90,p99,p100", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,"))
	assert.True(t, strings.HasPrefix(lines[2], "1,"))
}

func TestWriteUtilization_EmptySamplesWritesHeaderOnly(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, WriteUtilization(&buf, nil))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
}

func TestOccupancyPct_ZeroCapacityIsZero(t *testing.T) {
	assert.Equal(t, 0.0, occupancyPct(DimensionSample{RunningStreams: 3, Capacity: 0}))
}

func TestOccupancyPct_ComputesPercentage(t *testing.T) {
	assert.Equal(t, 50.0, occupancyPct(DimensionSample{RunningStreams: 2, Capacity: 4}))
}
