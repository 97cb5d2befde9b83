package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2, ScrollSteps: -3}, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.NotNil(t, f.tabs)
	require.Equal(t, defaultNavTimeout, f.cfg.NavigationTimeout)
	require.Equal(t, defaultSettle, f.cfg.Settle)
	require.Zero(t, f.cfg.ScrollSteps)

	unbounded, err := NewChromedp(Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(unbounded.Close)
	require.Nil(t, unbounded.tabs)
}

func TestFetchHonorsCanceledContextWhileWaitingForTab(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	require.True(t, f.tabs.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: "https://jobs.example/1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "browser tab")
}

func TestActionsScrollForLazyCards(t *testing.T) {
	t.Parallel()

	f := &Fetcher{cfg: Config{ScrollSteps: 3, Settle: time.Millisecond}}
	var page renderedPage
	// setup, navigate, wait, settle, 3 x (scroll, settle), location, html
	require.Len(t, f.actions(crawler.FetchRequest{URL: "https://jobs.example"}, &page), 12)
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{
		"X-Multi":  {"a", "b"},
		"X-Single": {"c"},
		"X-Empty":  {},
	})
	require.Equal(t, network.Headers{"X-Multi": []string{"a", "b"}, "X-Single": "c"}, got)
}

func TestDocumentResponseKeepsLastDocument(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301, URL: "https://jobs.example/old"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn.example/app.js"},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://jobs.example/new",
			Headers: network.Headers{"X-Request-Id": "abc", "Set-Cookie": []any{"a=1", "b=2"}},
		},
	})
	doc.observe("not a network event")

	resp := doc.response("https://jobs.example/old", "https://jobs.example/new#top")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://jobs.example/new", resp.URL)
	require.Equal(t, "abc", resp.Headers.Get("X-Request-Id"))
	require.Equal(t, []string{"a=1", "b=2"}, resp.Headers.Values("Set-Cookie"))
}

func TestDocumentResponseFallbacks(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	resp := doc.response("https://jobs.example/req", "https://jobs.example/final")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://jobs.example/final", resp.URL)
	require.NotNil(t, resp.Headers)

	resp = doc.response("https://jobs.example/req", "")
	require.Equal(t, "https://jobs.example/req", resp.URL)
}

func TestRequestHeadersAddsAcceptLanguage(t *testing.T) {
	t.Parallel()

	f := &Fetcher{cfg: Config{AcceptLanguage: "vi-VN,vi;q=0.9"}}
	require.Equal(t, "vi-VN,vi;q=0.9", f.requestHeaders(nil).Get("Accept-Language"))

	src := http.Header{"Accept-Language": {"en"}}
	got := f.requestHeaders(src)
	require.Equal(t, "en", got.Get("Accept-Language"))
	got.Set("X-Extra", "1")
	require.Empty(t, src.Get("X-Extra"))
}
