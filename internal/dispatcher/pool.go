package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task processes item i of a batch. Tasks own their error handling; a
// panicking task is recovered and reported to the pool's PanicHandler.
type Task func(ctx context.Context, i int)

// Waiter blocks until work may continue (see progress.Gate).
type Waiter interface {
	Wait(ctx context.Context) error
}

// Runner executes n tasks. Implementations wait at gate (when non-nil)
// before starting each task and stop starting tasks once ctx is done.
type Runner interface {
	Run(ctx context.Context, n int, gate Waiter, task Task) error
}

// PanicHandler receives the index and value of a recovered task panic.
type PanicHandler func(i int, recovered any)

// Pool runs tasks on at most Size goroutines.
type Pool struct {
	size    int
	onPanic PanicHandler
}

// NewPool builds a pool; sizes below 1 are raised to 1.
func NewPool(size int, onPanic PanicHandler) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, onPanic: onPanic}
}

// Size returns the maximum number of concurrent tasks.
func (p *Pool) Size() int {
	return p.size
}

// Run submits tasks 0..n-1 in order. A task is submitted only once a worker
// slot is free and gate is open, so nothing new starts while the gate is
// closed. Run always waits for submitted tasks to return; it reports ctx.Err()
// when submission stopped early.
func (p *Pool) Run(ctx context.Context, n int, gate Waiter, task Task) error {
	var g errgroup.Group
	slots := semaphore.NewWeighted(int64(p.size))
	var stopErr error
	for i := 0; i < n && stopErr == nil; i++ {
		if err := slots.Acquire(ctx, 1); err != nil {
			stopErr = err
			continue
		}
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				slots.Release(1)
				stopErr = err
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			slots.Release(1)
			stopErr = err
			continue
		}
		g.Go(func() error {
			defer slots.Release(1)
			defer p.recover(i)
			task(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	if stopErr != nil {
		return fmt.Errorf("pool stopped: %w", stopErr)
	}
	return nil
}

func (p *Pool) recover(i int) {
	if r := recover(); r != nil && p.onPanic != nil {
		p.onPanic(i, r)
	}
}

// Inline runs tasks sequentially on the calling goroutine. It is the
// deterministic Runner used by tests and one-shot tooling.
type Inline struct {
	OnPanic PanicHandler
}

// Run implements Runner.
func (r Inline) Run(ctx context.Context, n int, gate Waiter, task Task) error {
	p := &Pool{size: 1, onPanic: r.OnPanic}
	for i := 0; i < n; i++ {
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				return fmt.Errorf("inline stopped: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("inline stopped: %w", err)
		}
		func() {
			defer p.recover(i)
			task(ctx, i)
		}()
	}
	return nil
}
