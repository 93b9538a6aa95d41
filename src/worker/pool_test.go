package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("runs every accepted task", func(t *testing.T) {
		pool := NewPool(4)
		pool.Start()

		var ran int64
		var wg sync.WaitGroup

		for i := 0; i < 32; i++ {
			wg.Add(1)

			require.NoError(t, pool.Submit(context.Background(), func() {
				defer wg.Done()
				atomic.AddInt64(&ran, 1)
			}))
		}

		wg.Wait()
		pool.Stop()

		require.Equal(t, int64(32), atomic.LoadInt64(&ran))
	})

	t.Run("submit honors a cancelled context when the queue is full", func(t *testing.T) {
		pool := NewPool(1)
		pool.Start()

		started := make(chan struct{})
		release := make(chan struct{})

		require.NoError(t, pool.Submit(context.Background(), func() {
			close(started)
			<-release
		}))
		<-started

		// The only worker is parked, so these two fill the queue.
		for i := 0; i < 2; i++ {
			require.NoError(t, pool.Submit(context.Background(), func() {}))
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := pool.Submit(ctx, func() {})
		require.ErrorIs(t, err, context.Canceled)

		close(release)
		pool.Stop()
	})

	t.Run("stop drains accepted tasks before returning", func(t *testing.T) {
		pool := NewPool(2)
		pool.Start()

		var done int64
		for i := 0; i < 8; i++ {
			require.NoError(t, pool.Submit(context.Background(), func() {
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&done, 1)
			}))
		}

		pool.Stop()

		require.Equal(t, int64(8), atomic.LoadInt64(&done))
	})

	t.Run("clamps the worker count to at least one", func(t *testing.T) {
		pool := NewPool(0)
		pool.Start()

		var ran bool
		require.NoError(t, pool.Submit(context.Background(), func() { ran = true }))

		pool.Stop()
		require.True(t, ran)
	})

	t.Run("start and stop are idempotent", func(t *testing.T) {
		pool := NewPool(2)
		pool.Start()
		pool.Start()

		require.NoError(t, pool.Submit(context.Background(), func() {}))

		pool.Stop()
		pool.Stop()
	})
}
