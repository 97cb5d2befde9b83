package progress

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGate_ZeroValueIsOpen(t *testing.T) {
	t.Parallel()

	var g Gate
	require.True(t, g.IsOpen())
	require.NoError(t, g.Wait(context.Background()))
}

func TestGate_WaitBlocksUntilOpen(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Close()
	require.False(t, g.IsOpen())

	var released atomic.Int32
	for i := 0; i < 3; i++ {
		go func() {
			if err := g.Wait(context.Background()); err == nil {
				released.Add(1)
			}
		}()
	}

	require.Never(t, func() bool {
		return released.Load() > 0
	}, 100*time.Millisecond, 10*time.Millisecond)

	g.Open()
	require.Eventually(t, func() bool {
		return released.Load() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestGate_IdempotentToggles(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Open()
	g.Close()
	g.Close()
	require.False(t, g.IsOpen())
	g.Open()
	g.Open()
	require.True(t, g.IsOpen())
	require.NoError(t, g.Wait(context.Background()))
}

func TestGate_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	g := NewGate()
	g.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
