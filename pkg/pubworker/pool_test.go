package pubworker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_TryDispatchNonBlocking(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	start := time.Now()
	ok := pool.TryDispatch(PublishJob{
		ItemID:   "item-1",
		Platform: "facebook",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})
	elapsed := time.Since(start)

	require.True(t, ok, "dispatch into an empty queue must succeed")
	assert.Less(t, elapsed, 10*time.Millisecond, "TryDispatch must not block the caller")
}

func TestPool_SameItemPlatformSequentialProcessing(t *testing.T) {
	pool := NewPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var results []int
	var mu sync.Mutex

	for i := 1; i <= 5; i++ {
		val := i
		ok := pool.TryDispatch(PublishJob{
			ItemID:   "item-1",
			Platform: "tiktok",
			Handler: func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		})
		require.True(t, ok)
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4, 5}, results, "jobs for the same item|platform must run in order")
}

func TestPool_FullQueueDropsJob(t *testing.T) {
	pool := NewPool(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	release := make(chan struct{})
	blocker := func(ctx context.Context) error {
		<-release
		return nil
	}

	// First job occupies the worker, second fills the queue.
	require.True(t, pool.TryDispatch(PublishJob{ItemID: "a", Platform: "p", Handler: blocker}))
	time.Sleep(20 * time.Millisecond)
	require.True(t, pool.TryDispatch(PublishJob{ItemID: "a", Platform: "p", Handler: blocker}))

	ok := pool.TryDispatch(PublishJob{ItemID: "a", Platform: "p", Handler: blocker})
	assert.False(t, ok, "a full queue must reject the job instead of blocking")

	close(release)
	time.Sleep(50 * time.Millisecond)

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats.TotalDropped)
}

func TestPool_StatsCountProcessedAndErrors(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)

	var processed int32
	for i := 0; i < 3; i++ {
		pool.TryDispatch(PublishJob{
			ItemID:   "item",
			Platform: string(rune('a' + i)),
			Handler: func(ctx context.Context) error {
				atomic.AddInt32(&processed, 1)
				if atomic.LoadInt32(&processed) == 1 {
					return assert.AnError
				}
				return nil
			},
		})
	}

	time.Sleep(100 * time.Millisecond)
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, int64(3), stats.TotalDispatched)
	assert.Equal(t, int64(3), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.TotalErrors)
}

func TestPool_RejectsAfterStop(t *testing.T) {
	pool := NewPool(1, 5)
	pool.Start(context.Background())
	pool.Stop()

	ok := pool.TryDispatch(PublishJob{
		ItemID:   "late",
		Platform: "facebook",
		Handler:  func(ctx context.Context) error { return nil },
	})
	assert.False(t, ok, "a stopped pool must reject new jobs")
}
