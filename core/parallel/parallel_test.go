package parallel

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelize_CoversAllItems(t *testing.T) {
	seen := make([]int32, 1000)
	Parallelize(len(seen), func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, v := range seen {
		require.Equal(t, int32(1), v, "index %d", i)
	}
}

func TestForEach_IndexedResults(t *testing.T) {
	out := make([]int, 50)
	err := ForEach(context.Background(), len(out), 4, func(_ context.Context, i int) error {
		out[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestForEach_FirstErrorStopsWork(t *testing.T) {
	var calls int32
	err := ForEach(context.Background(), 1000, 2, func(ctx context.Context, i int) error {
		atomic.AddInt32(&calls, 1)
		if i == 3 {
			return fmt.Errorf("candidate %d failed", i)
		}
		return nil
	})
	require.EqualError(t, err, "candidate 3 failed")
	assert.Less(t, atomic.LoadInt32(&calls), int32(1000))
}

func TestForEach_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEach(ctx, 10, 2, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 3, Workers(3))
	assert.Greater(t, Workers(-1), 0)
}
