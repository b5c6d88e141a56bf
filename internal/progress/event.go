// Package progress defines the events emitted while a crawl run advances.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allofdaniel/placecrawl/internal/crawler"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageBatchStart    Stage = "BATCH_START"
	StageAttemptFailed Stage = "ATTEMPT_FAILED"
	StageEntityDone    Stage = "ENTITY_DONE"
	StageCheckpoint    Stage = "CHECKPOINT"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
)

// Event captures a single step of crawl progress.
type Event struct {
	// RunID identifies the run that produced the event.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// EntityID and Name scope attempt and entity events.
	EntityID string
	Name     string
	// URL is the resolved website for found entities.
	URL     string
	Outcome crawler.Outcome
	// Attempt is the attempt number for ATTEMPT_FAILED, the attempts used for ENTITY_DONE.
	Attempt int
	// Batch is 1-based; Batches is the run total.
	Batch   int
	Batches int
	// Count carries the batch size, the newly merged ids or the resolved total depending on Stage.
	Count int
	// Total is the outstanding entity count for the run.
	Total int
	Dur   time.Duration
	// Note holds a short, truncated error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageCheckpoint:
	case StageBatchStart:
		if e.Batch <= 0 {
			return errors.New("batch start requires batch number")
		}
	case StageAttemptFailed:
		if e.EntityID == "" || e.Attempt <= 0 {
			return errors.New("attempt failure requires entity id and attempt")
		}
	case StageEntityDone:
		if e.EntityID == "" {
			return errors.New("entity done requires entity id")
		}
		if e.Outcome == "" {
			return errors.New("entity done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// EntityDone builds the ENTITY_DONE event for a worker result.
func EntityDone(runID uuid.UUID, ts time.Time, res crawler.Result) Event {
	evt := Event{
		RunID:    runID,
		TS:       ts,
		Stage:    StageEntityDone,
		EntityID: res.Entity.ID,
		Name:     res.Entity.Name,
		URL:      res.URL,
		Outcome:  res.Outcome,
		Attempt:  res.Attempts,
		Dur:      res.Duration,
	}
	if res.Err != nil {
		evt.Note = crawler.Truncate(res.Err.Error(), crawler.ErrorNoteLimit)
	}
	return evt
}
