package localtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestZoneOffset(t *testing.T) {
	_, offset := time.Date(2025, 6, 1, 0, 0, 0, 0, Zone).Zone()
	require.Equal(t, 8*60*60, offset)
}

func TestInPreservesInstant(t *testing.T) {
	utc := time.Date(2025, 6, 1, 16, 30, 0, 0, time.UTC)
	local := In(utc)
	require.True(t, local.Equal(utc))
	require.Equal(t, 2, local.Day())
	require.Equal(t, 0, local.Hour())
	require.Equal(t, 30, local.Minute())
}

func TestFixedClock(t *testing.T) {
	pinned := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	clock := Fixed(pinned)
	require.True(t, clock.Now().Equal(pinned))
	require.Equal(t, 17, clock.Now().Hour())
}
