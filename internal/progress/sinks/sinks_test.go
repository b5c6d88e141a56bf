package sinks

import (
	"time"

	"github.com/google/uuid"

	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/progress"
)

var testRunID = uuid.MustParse("11111111-2222-3333-4444-555555555555")

// sampleRun is the event stream of a 3-entity run in a single batch.
func sampleRun() []progress.Event {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return []progress.Event{
		{RunID: testRunID, TS: now, Stage: progress.StageRunStart, Count: 5, Total: 3},
		{RunID: testRunID, TS: now, Stage: progress.StageBatchStart, Batch: 1, Batches: 1, Count: 3},
		{RunID: testRunID, TS: now, Stage: progress.StageAttemptFailed, EntityID: "2", Name: "B", Attempt: 1, Note: "navigation timeout"},
		{RunID: testRunID, TS: now, Stage: progress.StageEntityDone, EntityID: "1", Name: "A", Outcome: crawler.OutcomeFound, URL: "https://a.example", Attempt: 1, Dur: 3 * time.Second},
		{RunID: testRunID, TS: now, Stage: progress.StageEntityDone, EntityID: "2", Name: "B", Outcome: crawler.OutcomeFailed, Attempt: 2, Note: "navigation timeout", Dur: 60 * time.Second},
		{RunID: testRunID, TS: now, Stage: progress.StageEntityDone, EntityID: "3", Outcome: crawler.OutcomeNotFound, Attempt: 1},
		{RunID: testRunID, TS: now, Stage: progress.StageCheckpoint, Batch: 1, Count: 1, Total: 3},
		{RunID: testRunID, TS: now.Add(time.Minute), Stage: progress.StageRunDone, Count: 1, Total: 3, Dur: time.Minute},
	}
}
