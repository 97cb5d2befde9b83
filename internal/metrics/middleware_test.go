package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/runs/{run_id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})
	r.Post("/v1/pause", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	runs := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/runs/{run_id}", "200")
	pause := httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/pause", "409")
	missing := httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	beforeRuns, beforePause, beforeMissing := testutil.ToFloat64(runs), testutil.ToFloat64(pause), testutil.ToFloat64(missing)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/runs/a", nil),
		httptest.NewRequest(http.MethodGet, "/v1/runs/b", nil),
		httptest.NewRequest(http.MethodPost, "/v1/pause", nil),
		httptest.NewRequest(http.MethodGet, "/nope", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.InDelta(t, beforeRuns+2, testutil.ToFloat64(runs), 1e-9)
	require.InDelta(t, beforePause+1, testutil.ToFloat64(pause), 1e-9)
	require.InDelta(t, beforeMissing+1, testutil.ToFloat64(missing), 1e-9)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
