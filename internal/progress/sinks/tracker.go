package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/progress"
)

// Run states reported by the Tracker.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
	StateError   = "error"
)

// Status is a point-in-time view of the current run.
type Status struct {
	RunID         string     `json:"run_id,omitempty"`
	State         string     `json:"state"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CatalogSize   int        `json:"catalog_size"`
	Outstanding   int        `json:"outstanding"`
	Batch         int        `json:"batch"`
	Batches       int        `json:"batches"`
	Processed     int        `json:"processed"`
	Found         int        `json:"found"`
	NotFound      int        `json:"not_found"`
	Failed        int        `json:"failed"`
	Retries       int        `json:"retries"`
	Checkpoints   int        `json:"checkpoints"`
	TotalResolved int        `json:"total_resolved"`
	LastError     string     `json:"last_error,omitempty"`
}

// Tracker folds events into a Status readable from other goroutines.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{status: Status{State: StateIdle}}
}

// Consume applies the batch to the tracked status.
func (t *Tracker) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	return nil
}

func (t *Tracker) apply(evt progress.Event) {
	st := &t.status
	switch evt.Stage {
	case progress.StageRunStart:
		ts := evt.TS
		*st = Status{
			RunID:       evt.RunID.String(),
			State:       StateRunning,
			StartedAt:   &ts,
			CatalogSize: evt.Count,
			Outstanding: evt.Total,
		}
	case progress.StageBatchStart:
		st.Batch, st.Batches = evt.Batch, evt.Batches
	case progress.StageAttemptFailed:
		st.Retries++
		st.LastError = evt.Note
	case progress.StageEntityDone:
		st.Processed++
		switch evt.Outcome {
		case crawler.OutcomeFound:
			st.Found++
		case crawler.OutcomeNotFound:
			st.NotFound++
		default:
			st.Failed++
		}
	case progress.StageCheckpoint:
		st.Checkpoints++
		st.TotalResolved = evt.Total
	case progress.StageRunDone, progress.StageRunError:
		ts := evt.TS
		st.FinishedAt = &ts
		st.State = StateDone
		if evt.Stage == progress.StageRunError {
			st.State = StateError
			st.LastError = evt.Note
		} else {
			st.TotalResolved = evt.Total
		}
	}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Close implements the Sink interface; it performs no action.
func (t *Tracker) Close(context.Context) error {
	return nil
}
