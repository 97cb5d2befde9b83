package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// LogSink emits structured logs for progress streams. Per-link and
// per-detail events are logged at debug level; run milestones and failures
// at info/warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("phase", string(evt.Phase)),
			zap.String("source", evt.Source),
			zap.String("url", evt.URL),
			zap.Int("total", evt.Counters.Total),
			zap.Int("processed", evt.Counters.Processed),
			zap.Int("failed", evt.Counters.Failed),
			zap.Float64("percent", evt.Percent()),
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if ce := s.logger.Check(levelFor(evt.Stage), "progress event"); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageLinkFound, progress.StageDetailDone:
		return zapcore.DebugLevel
	case progress.StageDiscoveryError, progress.StageDetailError:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
