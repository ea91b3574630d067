package thread

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePushAndDrainFIFO(t *testing.T) {
	q := NewQueue(1024)
	var observed []int
	for i := 0; i < 10; i++ {
		i := i
		_, forced, err := q.Push(1, func(ctx context.Context) { observed = append(observed, i) })
		require.NoError(t, err)
		assert.False(t, forced)
	}

	for _, fn := range q.Drain() {
		fn(context.Background())
	}
	expected := make([]int, 10)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, observed)
}

func TestQueueDrainIsEmptyWhenNothingPending(t *testing.T) {
	q := NewQueue(1024)
	assert.Empty(t, q.Drain())
}

// TestQueueForcedFlushAtHighWaterMark: pushing past the high-water mark
// must force a flush but never fail the push.
func TestQueueForcedFlushAtHighWaterMark(t *testing.T) {
	q := NewQueue(4)
	var flushed []int
	q.SetForcedFlushHook(func(depth int) { flushed = append(flushed, depth) })

	for i := 0; i < 10; i++ {
		_, _, err := q.Push(1, func(context.Context) {})
		require.NoError(t, err)
	}

	assert.NotEmpty(t, flushed, "at least one forced-flush event must be observed")
	assert.LessOrEqual(t, q.Depth(), 4)
}

// TestQueuePreservesSourceFIFOAcrossForcedFlush exercises source-FIFO
// ordering combined with the force-flush path: all messages from one
// source are still observed
// in post order at the destination, even when a forced flush splits them
// across multiple internal batches.
func TestQueuePreservesSourceFIFOAcrossForcedFlush(t *testing.T) {
	q := NewQueue(4)
	const n = 2000
	var observed []int
	for i := 0; i < n; i++ {
		i := i
		_, _, err := q.Push(1, func(context.Context) { observed = append(observed, i) })
		if err != nil {
			// The consumer never drains during this burst, so the hard
			// ceiling eventually trips; the task is still enqueued.
			require.ErrorIs(t, err, ErrQueueOverflow)
		}
	}

	for _, fn := range q.Drain() {
		fn(context.Background())
	}
	require.Len(t, observed, n, "every message observed exactly once")
	for i, v := range observed {
		require.Equal(t, i, v, "source-FIFO order must be preserved across forced flushes")
	}
}

func TestQueueConcurrentPushersDoNotDeadlock(t *testing.T) {
	q := NewQueue(128)
	var wg sync.WaitGroup
	for source := 0; source < 8; source++ {
		source := source
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 256; i++ {
				_, _, err := q.Push(ThreadID(source), func(context.Context) {})
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	count := 0
	for _, fn := range q.Drain() {
		_ = fn
		count++
	}
	assert.Equal(t, 8*256, count)
}

// TestQueueOverflowSignaledPastHardCeiling: once staged work exceeds the
// hard ceiling without a drain, Push reports ErrQueueOverflow while still
// accepting the task.
func TestQueueOverflowSignaledPastHardCeiling(t *testing.T) {
	q := NewQueue(2)
	sawOverflow := false
	total := 2*hardCeilingFactor + 8
	for i := 0; i < total; i++ {
		_, _, err := q.Push(1, func(context.Context) {})
		if err != nil {
			require.ErrorIs(t, err, ErrQueueOverflow)
			sawOverflow = true
		}
	}
	require.True(t, sawOverflow, "hard ceiling must surface ErrQueueOverflow to producers")

	count := 0
	for _, fn := range q.Drain() {
		_ = fn
		count++
	}
	assert.Equal(t, total, count, "overflow signals back-pressure, it never drops a task")

	_, _, err := q.Push(1, func(context.Context) {})
	require.NoError(t, err, "a drain resets the ceiling")
}

func TestQueueRejectsPushAfterClose(t *testing.T) {
	q := NewQueue(8)
	q.Close()
	_, _, err := q.Push(1, func(context.Context) {})
	require.ErrorIs(t, err, ErrHostClosed)
}
