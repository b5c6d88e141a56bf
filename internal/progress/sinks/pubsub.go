package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/allofdaniel/placecrawl/internal/progress"
)

// Milestone is the message body published for run-level events.
type Milestone struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	TS         time.Time `json:"ts"`
	Batch      int       `json:"batch,omitempty"`
	Count      int       `json:"count"`
	Total      int       `json:"total"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// PubSubSink publishes run milestones (start, checkpoints, completion and
// failure) to a Pub/Sub topic so downstream jobs can react to new results.
// Per-entity events are not published.
type PubSubSink struct {
	topic *pubsub.Topic
}

// NewPubSubSink publishes to topic. The sink stops the topic on Close.
func NewPubSubSink(topic *pubsub.Topic) *PubSubSink {
	return &PubSubSink{topic: topic}
}

// Consume publishes every milestone in the batch and waits for the server to
// acknowledge them.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	var pending []*pubsub.PublishResult
	for _, evt := range batch {
		if !isMilestone(evt.Stage) {
			continue
		}
		data, err := json.Marshal(Milestone{
			RunID:      evt.RunID.String(),
			Stage:      string(evt.Stage),
			TS:         evt.TS,
			Batch:      evt.Batch,
			Count:      evt.Count,
			Total:      evt.Total,
			DurationMs: evt.Dur.Milliseconds(),
			Note:       evt.Note,
		})
		if err != nil {
			return fmt.Errorf("marshal milestone: %w", err)
		}
		pending = append(pending, s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"run_id": evt.RunID.String(),
				"stage":  string(evt.Stage),
			},
		}))
	}
	var errs []error
	for _, res := range pending {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish milestones: %w", errors.Join(errs...))
	}
	return nil
}

// Close flushes buffered messages and stops the topic's publish goroutines.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}

func isMilestone(stage progress.Stage) bool {
	switch stage {
	case progress.StageRunStart, progress.StageCheckpoint, progress.StageRunDone, progress.StageRunError:
		return true
	default:
		return false
	}
}
