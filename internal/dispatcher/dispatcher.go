// Package dispatcher fans work out to goroutines: queued crawl runs to their
// workers, and per-link tasks to a bounded, pause-aware pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Worker is a long-running consumer started by the Dispatcher.
type Worker interface {
	Run(ctx context.Context)
}

// Dispatcher fans queue work out to a set of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []Worker
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers ...Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
