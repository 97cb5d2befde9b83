package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRunDone        Stage = "RUN_DONE"
	StageLinkFound      Stage = "LINK_FOUND"
	StageDiscoveryError Stage = "DISCOVERY_ERROR"
	StageDetailDone     Stage = "DETAIL_DONE"
	StageDetailError    Stage = "DETAIL_ERROR"
	StagePaused         Stage = "PAUSED"
	StageResumed        Stage = "RESUMED"
)

// Event captures a single crawl milestone.
type Event struct {
	// RunID identifies the crawl run that produced the event.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	Phase Phase
	// Source is the site crawler label; required for per-unit stages.
	Source string
	URL    string
	// Counters is the phase snapshot taken when the event was produced.
	Counters Counters
	// Dur carries the run duration on RUN_DONE.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Percent returns the completion percentage carried by the event.
func (e Event) Percent() float64 {
	return e.Counters.Percent()
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StagePaused, StageResumed:
	case StageLinkFound, StageDiscoveryError, StageDetailDone, StageDetailError:
		if e.Source == "" {
			return fmt.Errorf("%s requires source", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Phase != "" && e.Phase != PhaseLinks && e.Phase != PhaseDetails {
		return fmt.Errorf("unknown phase %q", e.Phase)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
