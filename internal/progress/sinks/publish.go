package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-job-crawler/internal/crawler"
	"github.com/JakeFAU/realtime-job-crawler/internal/progress"
)

// Notification is the payload published for finished details and runs.
type Notification struct {
	RunID     string            `json:"run_id"`
	Stage     progress.Stage    `json:"stage"`
	Phase     progress.Phase    `json:"phase"`
	Source    string            `json:"source,omitempty"`
	URL       string            `json:"url,omitempty"`
	Counters  progress.Counters `json:"counters"`
	Percent   float64           `json:"percent"`
	Duration  string            `json:"duration,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// Attributes exposes the routing fields as Pub/Sub message attributes.
func (n Notification) Attributes() map[string]string {
	attrs := map[string]string{
		"run_id": n.RunID,
		"stage":  string(n.Stage),
		"phase":  string(n.Phase),
	}
	if n.Source != "" {
		attrs["source"] = n.Source
	}
	return attrs
}

// PublishSink forwards selected milestones to a crawler.Publisher so
// downstream consumers learn about new job details without polling.
type PublishSink struct {
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink builds a sink publishing to topic.
func NewPublishSink(publisher crawler.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes one message per DETAIL_DONE and RUN_DONE event. All
// events are attempted; the joined error reports every failure.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StageDetailDone && evt.Stage != progress.StageRunDone {
			continue
		}
		msg := Notification{
			RunID:     evt.RunID,
			Stage:     evt.Stage,
			Phase:     evt.Phase,
			Source:    evt.Source,
			URL:       evt.URL,
			Counters:  evt.Counters,
			Percent:   evt.Percent(),
			Timestamp: evt.TS.UTC(),
		}
		if evt.Dur > 0 {
			msg.Duration = evt.Dur.String()
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s %s: %w", evt.Stage, evt.URL, err))
			continue
		}
		s.logger.Debug("notification published", zap.String("message_id", id), zap.String("stage", string(evt.Stage)))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
