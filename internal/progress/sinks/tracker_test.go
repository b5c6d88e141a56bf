package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/placecrawl/internal/progress"
)

func TestTrackerFoldsRun(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	require.Equal(t, StateIdle, tracker.Snapshot().State)

	events := sampleRun()
	require.NoError(t, tracker.Consume(context.Background(), events[:4]))
	mid := tracker.Snapshot()
	assert.Equal(t, StateRunning, mid.State)
	assert.Equal(t, testRunID.String(), mid.RunID)
	assert.Equal(t, 5, mid.CatalogSize)
	assert.Equal(t, 3, mid.Outstanding)
	assert.Equal(t, 1, mid.Processed)
	assert.Equal(t, 1, mid.Retries)
	assert.Nil(t, mid.FinishedAt)

	require.NoError(t, tracker.Consume(context.Background(), events[4:]))
	done := tracker.Snapshot()
	assert.Equal(t, StateDone, done.State)
	assert.Equal(t, 3, done.Processed)
	assert.Equal(t, 1, done.Found)
	assert.Equal(t, 1, done.NotFound)
	assert.Equal(t, 1, done.Failed)
	assert.Equal(t, 1, done.Checkpoints)
	assert.Equal(t, 3, done.TotalResolved)
	require.NotNil(t, done.FinishedAt)
}

func TestTrackerRunError(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	now := time.Now()
	require.NoError(t, tracker.Consume(context.Background(), []progress.Event{
		{RunID: testRunID, TS: now, Stage: progress.StageRunStart, Count: 1, Total: 1},
		{RunID: testRunID, TS: now, Stage: progress.StageRunError, Note: "checkpoint: disk full"},
	}))
	st := tracker.Snapshot()
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, "checkpoint: disk full", st.LastError)
}
