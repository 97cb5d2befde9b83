package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	pool := NewPool(3, nil)
	var running, peak atomic.Int32
	var ran atomic.Int32

	err := pool.Run(context.Background(), 20, nil, func(context.Context, int) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		ran.Add(1)
	})

	require.NoError(t, err)
	require.EqualValues(t, 20, ran.Load())
	require.LessOrEqual(t, peak.Load(), int32(3))
	require.Equal(t, 3, pool.Size())
}

func TestPoolSizeFloor(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, NewPool(0, nil).Size())
}

func TestPoolRecoversPanics(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var panicked []int
	pool := NewPool(2, func(i int, _ any) {
		mu.Lock()
		defer mu.Unlock()
		panicked = append(panicked, i)
	})
	var ran atomic.Int32

	err := pool.Run(context.Background(), 4, nil, func(_ context.Context, i int) {
		if i == 1 {
			panic("bad page")
		}
		ran.Add(1)
	})

	require.NoError(t, err)
	require.EqualValues(t, 3, ran.Load())
	require.Equal(t, []int{1}, panicked)
}

func TestPoolDoesNotSubmitWhileGateClosed(t *testing.T) {
	t.Parallel()

	gate := progress.NewGate()
	gate.Close()
	pool := NewPool(2, nil)
	var started atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- pool.Run(context.Background(), 5, gate, func(context.Context, int) {
			started.Add(1)
		})
	}()

	require.Never(t, func() bool {
		return started.Load() > 0
	}, 100*time.Millisecond, 10*time.Millisecond)

	gate.Open()
	require.NoError(t, <-done)
	require.EqualValues(t, 5, started.Load())
}

func TestPoolStopsOnCancel(t *testing.T) {
	t.Parallel()

	gate := progress.NewGate()
	gate.Close()
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- NewPool(1, nil).Run(ctx, 3, gate, func(context.Context, int) {
			started.Add(1)
		})
	}()
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, started.Load())
}

func TestPoolStopsOnCancelWhileWaitingForSlot(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var started atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- NewPool(1, nil).Run(ctx, 3, nil, func(context.Context, int) {
			started.Add(1)
			<-release
		})
	}()
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	close(release)

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), started.Load())
}

func TestInlineRunsInOrder(t *testing.T) {
	t.Parallel()

	var order []int
	err := Inline{}.Run(context.Background(), 4, progress.NewGate(), func(_ context.Context, i int) {
		order = append(order, i)
	})
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, order)
}
