// Package detector decides when a statically fetched page is a JavaScript
// shell that must be rendered in a headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

// DefaultThreshold is the score at which a page is promoted.
const DefaultThreshold = 0.5

// minVisibleText is the amount of rendered text below which a page looks empty.
const minVisibleText = 200

// Config tunes the heuristic.
type Config struct {
	// Threshold in (0, 1]; higher means fewer promotions.
	Threshold float64
	// RequiredSelector, when set, must match for a page to count as rendered.
	RequiredSelector string
}

// Heuristic scores static responses on a handful of shell signals.
type Heuristic struct {
	threshold float64
	required  string
}

// NewHeuristic creates a new detector.
func NewHeuristic(cfg Config) *Heuristic {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	return &Heuristic{threshold: cfg.Threshold, required: cfg.RequiredSelector}
}

var spaMarkers = []string{
	"#__next",
	"#__nuxt",
	"#root",
	"#app",
	"[data-reactroot]",
	"[ng-version]",
}

// ShouldPromote implements crawler.HeadlessDetector. Only successful
// responses are ever promoted.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return h.Score(resp.Body) >= h.threshold
}

// Score rates how likely body is an unrendered shell, from 0 to 1.
func (h *Heuristic) Score(body []byte) float64 {
	if len(bytes.TrimSpace(body)) == 0 {
		return 1
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}
	if h.required != "" && doc.Find(h.required).Length() == 0 {
		return 1
	}

	score := 0.0
	if scriptDensity(doc, len(body)) >= 0.25 {
		score += 0.35
	}
	for _, sel := range spaMarkers {
		if doc.Find(sel).Length() > 0 {
			score += 0.3
			break
		}
	}

	doc.Find("script, style, noscript, template").Remove()
	text := crawler.CleanText(doc.Find("body").Text())
	if len(text) < minVisibleText {
		score += 0.35
	}
	if strings.Contains(strings.ToLower(text), "enable javascript") {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

// scriptDensity is the share of the document taken by inline script source.
func scriptDensity(doc *goquery.Document, total int) float64 {
	if total == 0 {
		return 0
	}
	covered := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		covered += len(s.Text())
		if src, ok := s.Attr("src"); ok {
			covered += len(src)
		}
	})
	return float64(covered) / float64(total)
}
