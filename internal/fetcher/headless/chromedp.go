// Package headless renders JavaScript-driven job listing pages with a
// headless Chrome and promotes static fetches that came back as app shells.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/metrics"
)

const (
	defaultNavTimeout = 45 * time.Second
	defaultSettle     = 500 * time.Millisecond
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel bounds concurrent browser tabs; 0 means unbounded.
	MaxParallel       int
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
	// WaitSelector, when set, must appear before the page is captured
	// (e.g. the listing container).
	WaitSelector string
	// Settle is how long to let client-side rendering finish after load.
	Settle time.Duration
	// ScrollSteps scrolls the page this many times to trigger lazy-loaded
	// listing cards.
	ScrollSteps int
}

// Fetcher implements crawler.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	policy      crawler.Policy
	tabs        *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. policy may be nil.
// Chrome itself is only launched on the first Fetch.
func NewChromedp(cfg Config, policy crawler.Policy) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.ScrollSteps < 0 {
		cfg.ScrollSteps = 0
	}

	var tabs *semaphore.Weighted
	if cfg.MaxParallel > 0 {
		tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.AcceptLanguage != "" {
		opts = append(opts, chromedp.Flag("lang", cfg.AcceptLanguage))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		policy:      policy,
		tabs:        tabs,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders request.URL in a fresh tab and returns the final DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.tabs != nil {
		if err := f.tabs.Acquire(ctx, 1); err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("wait for browser tab: %w", err)
		}
		defer f.tabs.Release(1)
	}
	if f.policy != nil {
		if err := f.policy.Wait(ctx, request.URL); err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("politeness: %w", err)
		}
	}

	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	// Tabs derive from the allocator, so the caller's ctx is linked by hand.
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	page, err := f.render(tabCtx, request)
	if err != nil {
		metrics.ObserveFetch(request.URL, "headless", "error", 0)
		return crawler.FetchResponse{}, err
	}

	resp := doc.response(request.URL, page.location)
	metrics.ObserveFetch(request.URL, "headless", metrics.StatusLabel(resp.StatusCode), len(page.html))
	if resp.StatusCode >= http.StatusBadRequest {
		return crawler.FetchResponse{}, &crawler.StatusError{URL: request.URL, StatusCode: resp.StatusCode}
	}
	resp.Body = []byte(page.html)
	resp.Duration = time.Since(start)
	resp.UsedHeadless = true
	return resp, nil
}

type renderedPage struct {
	html     string
	location string
}

func (f *Fetcher) render(ctx context.Context, request crawler.FetchRequest) (renderedPage, error) {
	var page renderedPage
	if err := chromedp.Run(ctx, f.actions(request, &page)...); err != nil {
		return renderedPage{}, fmt.Errorf("render %s: %w", request.URL, err)
	}
	return page, nil
}

// actions lists the browser steps for one page: set up headers, navigate,
// wait for content, scroll for lazy cards, then capture.
func (f *Fetcher) actions(request crawler.FetchRequest, page *renderedPage) []chromedp.Action {
	waitFor := "body"
	if f.cfg.WaitSelector != "" {
		waitFor = f.cfg.WaitSelector
	}
	actions := []chromedp.Action{
		f.prepareTab(f.requestHeaders(request.Headers)),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(waitFor, chromedp.ByQuery),
		chromedp.Sleep(f.cfg.Settle),
	}
	for range f.cfg.ScrollSteps {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(f.cfg.Settle),
		)
	}
	return append(actions,
		chromedp.Location(&page.location),
		chromedp.OuterHTML("html", &page.html, chromedp.ByQuery),
	)
}

func (f *Fetcher) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(f.cfg.UserAgent)
			if f.cfg.AcceptLanguage != "" {
				override = override.WithAcceptLanguage(f.cfg.AcceptLanguage)
			}
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) == 0 {
			return nil
		}
		if err := network.SetExtraHTTPHeaders(networkHeaders(headers)).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

// requestHeaders returns a copy of h with the configured Accept-Language
// filled in unless the caller set one.
func (f *Fetcher) requestHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	if f.cfg.AcceptLanguage != "" && out.Get("Accept-Language") == "" {
		out.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
	return out
}

// documentResponse records the main document's HTTP response as reported by
// the DevTools network domain.
type documentResponse struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) observe(ev any) {
	event, ok := ev.(*network.EventResponseReceived)
	if !ok || event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	// Redirect chains report several documents; the last one is the page.
	d.seen = true
	d.status = int(event.Response.Status)
	d.headers = headers
	d.url = event.Response.URL
}

// response builds the fetch metadata. Without a captured document event the
// page is assumed to have loaded with 200 at its final location.
func (d *documentResponse) response(requestURL, location string) crawler.FetchResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := crawler.FetchResponse{URL: requestURL, StatusCode: http.StatusOK, Headers: http.Header{}}
	if location != "" {
		resp.URL = location
	}
	if !d.seen {
		return resp
	}
	if d.url != "" {
		resp.URL = d.url
	}
	if d.status != 0 {
		resp.StatusCode = d.status
	}
	resp.Headers = d.headers.Clone()
	return resp
}

func networkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			out[key] = values[0]
		default:
			out[key] = append([]string(nil), values...)
		}
	}
	return out
}
