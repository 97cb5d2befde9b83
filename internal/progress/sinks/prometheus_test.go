package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and gauges follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{RunID: "r1", TS: now, Stage: progress.StageRunStart, Phase: progress.PhaseDetails},
		{
			RunID: "r1", TS: now, Stage: progress.StageDetailDone, Phase: progress.PhaseDetails,
			Source: "A", URL: "u1", Counters: progress.Counters{Total: 2, Processed: 1},
		},
		{RunID: "r1", TS: now, Stage: progress.StagePaused},
		{
			RunID: "r1", TS: now, Stage: progress.StageDetailError, Phase: progress.PhaseDetails,
			Source: "A", URL: "u2", Counters: progress.Counters{Total: 2, Processed: 1, Failed: 1},
		},
		{
			RunID: "r1", TS: now, Stage: progress.StageRunDone, Phase: progress.PhaseDetails,
			Counters: progress.Counters{Total: 2, Processed: 1, Failed: 1}, Dur: 3 * time.Second,
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("details")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("details")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.details.WithLabelValues("A", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.details.WithLabelValues("A", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.paused))
	require.InDelta(t, 100.0, testutil.ToFloat64(sink.phasePercent.WithLabelValues("details")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runRuntime, "jobcrawl_run_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestPrometheusSinkLinkEvents(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r", TS: now, Stage: progress.StageLinkFound, Phase: progress.PhaseLinks, Source: "B"},
		{RunID: "r", TS: now, Stage: progress.StageLinkFound, Phase: progress.PhaseLinks, Source: "B"},
		{RunID: "r", TS: now, Stage: progress.StageDiscoveryError, Phase: progress.PhaseLinks, Source: "C"},
		{RunID: "r", TS: now, Stage: progress.StageResumed},
	}))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.linksFound.WithLabelValues("B")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.discoveryErrors.WithLabelValues("C")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.paused))
}
