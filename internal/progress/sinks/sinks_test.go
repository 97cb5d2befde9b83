package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "r", TS: now, Stage: progress.StageLinkFound, Phase: progress.PhaseLinks, Source: "A", URL: "u1"},
		{RunID: "r", TS: now, Stage: progress.StageDetailError, Phase: progress.PhaseDetails, Source: "A", Note: "boom"},
		{RunID: "r", TS: now, Stage: progress.StageRunDone, Phase: progress.PhaseDetails, Dur: time.Second},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "boom", entries[1].ContextMap()["note"])
	require.Equal(t, zapcore.InfoLevel, entries[2].Level)
}

func TestPublishSinkPublishesDetailsAndRunDone(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := NewPublishSink(pub, "job-details", zap.NewNop())

	now := time.Now()
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "r", TS: now, Stage: progress.StageRunStart, Phase: progress.PhaseDetails},
		{RunID: "r", TS: now, Stage: progress.StageDetailDone, Phase: progress.PhaseDetails, Source: "A", URL: "u1",
			Counters: progress.Counters{Total: 2, Processed: 1}},
		{RunID: "r", TS: now, Stage: progress.StageDetailError, Phase: progress.PhaseDetails, Source: "A", URL: "u2"},
		{RunID: "r", TS: now, Stage: progress.StageRunDone, Phase: progress.PhaseDetails, Dur: time.Second},
	})
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	first, ok := msgs[0].(Notification)
	require.True(t, ok)
	require.Equal(t, "u1", first.URL)
	require.InDelta(t, 50.0, first.Percent, 1e-9)
	second, ok := msgs[1].(Notification)
	require.True(t, ok)
	require.Equal(t, progress.StageRunDone, second.Stage)
	require.Equal(t, "1s", second.Duration)
	require.Equal(t, []string{"job-details", "job-details"}, pub.Topics())
	require.Equal(t, map[string]string{
		"run_id": "r",
		"stage":  string(progress.StageDetailDone),
		"phase":  string(progress.PhaseDetails),
		"source": "A",
	}, first.Attributes())
}

func TestPublishSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("unavailable")}
	sink := NewPublishSink(pub, "t", nil)
	now := time.Now()
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "r", TS: now, Stage: progress.StageDetailDone, Source: "A", URL: "u1"},
		{RunID: "r", TS: now, Stage: progress.StageDetailDone, Source: "A", URL: "u2"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "u1")
	require.Contains(t, err.Error(), "u2")
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []any
	topics   []string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, payload)
	return "id", nil
}

func (f *fakePublisher) Messages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.messages...)
}

func (f *fakePublisher) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}
