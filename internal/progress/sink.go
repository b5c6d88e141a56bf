package progress

import (
	"context"
	"slices"
	"sync"
)

// Sink consumes batches of progress events. The hub calls a sink from a single
// goroutine; sinks that are also read elsewhere must guard their own state.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it so workers stay
// agnostic about buffering and delivery.
type Emitter interface {
	Emit(evt Event)
}

// Discard is an Emitter that drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Recorder is an Emitter that keeps events in memory, mainly for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends evt.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events, optionally filtered by stage.
func (r *Recorder) Events(stages ...Stage) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, evt := range r.events {
		if len(stages) == 0 || slices.Contains(stages, evt.Stage) {
			out = append(out, evt)
		}
	}
	return out
}
