package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLinks is returned when the detail phase has no persisted links to load.
	ErrNoLinks = errors.New("no persisted links")
	// ErrUnknownSource marks a link whose source has no registered crawler.
	ErrUnknownSource = errors.New("unknown source")
	// ErrEmptyRecord marks an extraction that produced nothing usable.
	ErrEmptyRecord = errors.New("empty record")
	// ErrNotFound is returned by stores for missing entities.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPhase is returned for an unrecognised progress phase.
	ErrInvalidPhase = errors.New("invalid phase")
	// ErrRunInProgress is returned when a crawl is already running on the engine.
	ErrRunInProgress = errors.New("crawl already in progress")
	// ErrUnknownLinkStatus reports a stored link status outside the known set.
	ErrUnknownLinkStatus = errors.New("unknown link status")
)

// ExtractionError describes a failed unit of work for one URL.
type ExtractionError struct {
	Source string
	URL    string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.URL, e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
