package headless

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/metrics"
)

// Promoting fetches statically and re-fetches in the browser when the
// detector judges the static page to be an unrendered shell.
type Promoting struct {
	static   crawler.Fetcher
	browser  crawler.Fetcher
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

// NewPromoting wires the two fetchers. browser and detector may be nil, in
// which case every request is served statically.
func NewPromoting(
	static crawler.Fetcher,
	browser crawler.Fetcher,
	detector crawler.HeadlessDetector,
	logger *zap.Logger,
) (*Promoting, error) {
	if static == nil {
		return nil, fmt.Errorf("static fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{
		static:   static,
		browser:  browser,
		detector: detector,
		logger:   logger.Named("promoting_fetcher"),
	}, nil
}

// Fetch implements crawler.Fetcher. A failed browser fetch after promotion
// falls back to the static response.
func (p *Promoting) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if request.UseHeadless && p.browser != nil {
		return p.browser.Fetch(ctx, request) //nolint:wrapcheck // fetchers wrap their own errors
	}
	resp, err := p.static.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, err //nolint:wrapcheck // fetchers wrap their own errors
	}
	if p.browser == nil || p.detector == nil || !p.detector.ShouldPromote(resp) {
		return resp, nil
	}

	metrics.ObserveHeadlessPromotion(request.URL)
	rendered, err := p.browser.Fetch(ctx, request)
	if err != nil {
		p.logger.Warn("headless fetch failed; using static page",
			zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	p.logger.Debug("promoted to headless",
		zap.String("url", request.URL),
		zap.Int("static_bytes", len(resp.Body)),
		zap.Int("rendered_bytes", len(rendered.Body)))
	return rendered, nil
}
