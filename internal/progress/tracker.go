package progress

import "sync"

// Counters is a snapshot of one phase's progress.
//   - Total: units of work known so far.
//   - Processed: units that completed successfully.
//   - Failed: units that completed with an error.
type Counters struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Done returns the number of completed units, successful or not.
func (c Counters) Done() int {
	return c.Processed + c.Failed
}

// Percent returns completion in [0, 100]; 0 when Total is 0. Failed units
// count as completed so a run with failures still finishes at 100.
func (c Counters) Percent() float64 {
	if c.Total <= 0 {
		return 0
	}
	pct := float64(c.Done()) / float64(c.Total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Tracker holds the counters for both phases behind a single mutex. Every
// mutator returns the snapshot taken inside the same critical section.
type Tracker struct {
	mu      sync.Mutex
	links   Counters
	details Counters
}

// NewTracker returns a zeroed tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Reset zeroes the counters of one phase.
func (t *Tracker) Reset(phase Phase) {
	t.update(phase, func(c *Counters) { *c = Counters{} })
}

// AddTotal grows the phase total by n.
func (t *Tracker) AddTotal(phase Phase, n int) Counters {
	return t.update(phase, func(c *Counters) {
		if n > 0 {
			c.Total += n
		}
	})
}

// IncProcessed records one successful unit.
func (t *Tracker) IncProcessed(phase Phase) Counters {
	return t.update(phase, func(c *Counters) { c.Processed++ })
}

// IncFailed records one failed unit.
func (t *Tracker) IncFailed(phase Phase) Counters {
	return t.update(phase, func(c *Counters) { c.Failed++ })
}

// Snapshot returns the current counters of a phase.
func (t *Tracker) Snapshot(phase Phase) Counters {
	return t.update(phase, func(*Counters) {})
}

// Percent returns the completion percentage of a phase.
func (t *Tracker) Percent(phase Phase) float64 {
	return t.Snapshot(phase).Percent()
}

func (t *Tracker) update(phase Phase, fn func(*Counters)) Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	var c *Counters
	switch phase {
	case PhaseLinks:
		c = &t.links
	case PhaseDetails:
		c = &t.details
	default:
		return Counters{}
	}
	fn(c)
	return *c
}
