package detect

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherCoalescesMutationBursts(t *testing.T) {
	var rescans atomic.Int32
	w := NewWatcher(30*time.Millisecond, func() { rescans.Add(1) })
	defer w.Stop()

	// A burst of mutations inside the quiet window schedules one re-scan.
	for i := 0; i < 5; i++ {
		w.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return rescans.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// Stays at one once the window has passed.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), rescans.Load())
}

func TestWatcherReschedulesAfterQuietPeriod(t *testing.T) {
	var rescans atomic.Int32
	w := NewWatcher(20*time.Millisecond, func() { rescans.Add(1) })
	defer w.Stop()

	w.Trigger()
	require.Eventually(t, func() bool { return rescans.Load() == 1 },
		time.Second, 5*time.Millisecond)

	w.Trigger()
	require.Eventually(t, func() bool { return rescans.Load() == 2 },
		time.Second, 5*time.Millisecond)
}

func TestWatcherStopCancelsPendingRescan(t *testing.T) {
	var rescans atomic.Int32
	w := NewWatcher(30*time.Millisecond, func() { rescans.Add(1) })

	w.Trigger()
	w.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), rescans.Load())
}

func TestDebouncerCancelAndReplace(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(25 * time.Millisecond)

	d.Debounce(func() { fired.Add(10) })
	d.Debounce(func() { fired.Add(1) })

	require.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond,
		"only the replacement callback may fire")
}
