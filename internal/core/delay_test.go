package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesUntilCap(t *testing.T) {
	b := NewBackoffDelay(1*time.Second, 10*time.Second)

	require.Equal(t, 1*time.Second, b.GetNextDelay())
	require.Equal(t, 2*time.Second, b.GetNextDelay())
	require.Equal(t, 4*time.Second, b.GetNextDelay())
	require.Equal(t, 8*time.Second, b.GetNextDelay())
	// 16s would exceed the 10s cap.
	require.Equal(t, 10*time.Second, b.GetNextDelay())
	require.Equal(t, 10*time.Second, b.GetNextDelay())
}

func TestBackoffDelayResetReturnsToMin(t *testing.T) {
	b := NewBackoffDelay(1*time.Second, 10*time.Second)
	b.GetNextDelay()
	b.GetNextDelay()

	b.Reset()

	require.Equal(t, 1*time.Second, b.GetNextDelay())
}

func TestBackoffDelayExponentNeverOverflows(t *testing.T) {
	b := NewBackoffDelay(1*time.Nanosecond, time.Hour)
	for i := 0; i < maxBackoffExponent+10; i++ {
		d := b.GetNextDelay()
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, time.Hour)
	}
}

func TestDefaultBackoffDelayMatchesSourceConstants(t *testing.T) {
	b := DefaultBackoffDelay()
	require.Equal(t, 15*time.Second, b.GetNextDelay())
}
