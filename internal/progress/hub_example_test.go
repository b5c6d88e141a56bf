package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allofdaniel/placecrawl/internal/crawler"
)

// ExampleHub_Emit shows a custom sink counting found entities; Close flushes it.
func ExampleHub_Emit() {
	found := 0
	counter := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageEntityDone && evt.Outcome == crawler.OutcomeFound {
				found++
			}
		}
		return nil
	})
	hub := NewHub(Config{BufferSize: 4, MaxBatchWait: time.Second}, counter)

	runID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	hub.Emit(EntityDone(runID, time.Unix(0, 0), crawler.Result{
		Entity:   crawler.Entity{ID: "1", Name: "A"},
		Outcome:  crawler.OutcomeFound,
		URL:      "https://a.example",
		Attempts: 1,
	}))
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("found: %d\n", found)
	// Output:
	// found: 1
}
