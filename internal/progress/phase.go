package progress

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// Phase identifies one of the two crawl phases.
type Phase string

// Supported phases.
const (
	PhaseLinks   Phase = "links"
	PhaseDetails Phase = "details"
)

// ParsePhase converts user input ("links" or "details") into a Phase.
func ParsePhase(raw string) (Phase, error) {
	switch Phase(strings.ToLower(strings.TrimSpace(raw))) {
	case PhaseLinks:
		return PhaseLinks, nil
	case PhaseDetails:
		return PhaseDetails, nil
	default:
		return "", fmt.Errorf("%w: %q", crawler.ErrInvalidPhase, raw)
	}
}
