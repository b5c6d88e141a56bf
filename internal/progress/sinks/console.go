package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/progress"
)

// ConsoleSink prints a human-readable line per event, one check or cross per entity.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink writes to w, or stdout when w is nil.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

// Consume renders the batch. Write errors are returned to the hub, which logs them.
func (s *ConsoleSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		line := render(evt)
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(s.w, line); err != nil {
			return fmt.Errorf("console sink write: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func render(evt progress.Event) string {
	switch evt.Stage {
	case progress.StageRunStart:
		return fmt.Sprintf("run %s: %d of %d entities outstanding", evt.RunID, evt.Total, evt.Count)
	case progress.StageBatchStart:
		return fmt.Sprintf("[batch %d/%d] %d entities", evt.Batch, evt.Batches, evt.Count)
	case progress.StageAttemptFailed:
		return fmt.Sprintf("  retry %s (attempt %d): %s", label(evt), evt.Attempt, evt.Note)
	case progress.StageEntityDone:
		switch evt.Outcome {
		case crawler.OutcomeFound:
			return fmt.Sprintf("✓ %s: %s", label(evt), evt.URL)
		case crawler.OutcomeNotFound:
			return fmt.Sprintf("✗ %s: no website", label(evt))
		default:
			return fmt.Sprintf("✗ %s: %s", label(evt), evt.Note)
		}
	case progress.StageCheckpoint:
		return fmt.Sprintf("checkpoint: %d resolved (+%d)", evt.Total, evt.Count)
	case progress.StageRunDone:
		return fmt.Sprintf("done: %d resolved this run, %d resolved in total (%s)", evt.Count, evt.Total, evt.Dur.Round(time.Second))
	case progress.StageRunError:
		return fmt.Sprintf("run failed: %s", evt.Note)
	}
	return ""
}

func label(evt progress.Event) string {
	if evt.Name != "" {
		return evt.Name
	}
	return evt.EntityID
}
