package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/progress"
)

// LogSink writes each event as a structured log line.
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

// Consume logs each event in the batch. Attempt failures and failed entities log at warn.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageBatchStart:
			fields = append(fields,
				zap.Int("batch", evt.Batch),
				zap.Int("batches", evt.Batches),
				zap.Int("size", evt.Count),
			)
		case progress.StageAttemptFailed, progress.StageEntityDone:
			fields = append(fields,
				zap.String("entity_id", evt.EntityID),
				zap.String("name", evt.Name),
				zap.Int("attempt", evt.Attempt),
			)
			if evt.Outcome != "" {
				fields = append(fields, zap.String("outcome", string(evt.Outcome)))
			}
			if evt.URL != "" {
				fields = append(fields, zap.String("url", evt.URL))
			}
		default:
			fields = append(fields, zap.Int("count", evt.Count), zap.Int("total", evt.Total))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageAttemptFailed || evt.Stage == progress.StageRunError ||
			evt.Outcome == crawler.OutcomeFailed {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
