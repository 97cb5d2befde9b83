package progress

import (
	"context"
	"sync"
)

// Gate is a cooperative pause primitive. The zero value is an open gate.
// Close parks every caller of Wait until Open is called; nothing in flight is
// interrupted.
type Gate struct {
	mu     sync.Mutex
	closed bool
	// released is closed by Open to wake all parked waiters.
	released chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Close pauses the gate. Calling Close on a closed gate is a no-op.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	g.released = make(chan struct{})
}

// Open resumes the gate and releases all waiters. Calling Open on an open gate
// is a no-op.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		return
	}
	g.closed = false
	close(g.released)
}

// IsOpen reports whether callers may proceed.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed
}

// Wait blocks until the gate is open or ctx is done. It returns ctx.Err() when
// the context ends first. A waiter woken by Open may observe a gate that was
// closed again immediately afterwards; callers that need a stable view
// re-check IsOpen under their own lock.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	if !g.closed {
		g.mu.Unlock()
		return nil
	}
	released := g.released
	g.mu.Unlock()

	select {
	case <-released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
