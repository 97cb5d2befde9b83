package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runRuntime    *prometheus.HistogramVec
	phasePercent  *prometheus.GaugeVec
	paused        prometheus.Gauge

	linksFound      *prometheus.CounterVec
	discoveryErrors *prometheus.CounterVec
	details         *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcrawl_runs_started_total",
			Help: "Crawl phases started.",
		}, []string{"phase"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcrawl_runs_completed_total",
			Help: "Crawl phases completed.",
		}, []string{"phase"}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobcrawl_run_runtime_seconds",
			Help:    "Wall time per completed crawl phase.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"phase"}),
		phasePercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobcrawl_phase_progress_percent",
			Help: "Latest observed completion percentage per phase.",
		}, []string{"phase"}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobcrawl_paused",
			Help: "1 while the crawl is paused.",
		}),
		linksFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcrawl_links_found_total",
			Help: "Job links discovered per source.",
		}, []string{"source"}),
		discoveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcrawl_discovery_errors_total",
			Help: "Failed discovery calls per source.",
		}, []string{"source"}),
		details: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcrawl_details_total",
			Help: "Detail extractions per source and result.",
		}, []string{"source", "result"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.phasePercent,
		s.paused,
		s.linksFound,
		s.discoveryErrors,
		s.details,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	phase := string(evt.Phase)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(phase).Inc()
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues(phase).Inc()
		if evt.Dur > 0 {
			s.runRuntime.WithLabelValues(phase).Observe(evt.Dur.Seconds())
		}
	case progress.StagePaused:
		s.paused.Set(1)
	case progress.StageResumed:
		s.paused.Set(0)
	case progress.StageLinkFound:
		s.linksFound.WithLabelValues(evt.Source).Inc()
	case progress.StageDiscoveryError:
		s.discoveryErrors.WithLabelValues(evt.Source).Inc()
	case progress.StageDetailDone:
		s.details.WithLabelValues(evt.Source, "success").Inc()
	case progress.StageDetailError:
		s.details.WithLabelValues(evt.Source, "error").Inc()
	}
	if phase != "" {
		s.phasePercent.WithLabelValues(phase).Set(evt.Percent())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
