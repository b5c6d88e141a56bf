package crawler

import (
	"context"
	"time"
)

// Renderer opens isolated browsing sessions.
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a single-use browsing identity. It must not be shared across attempts.
type Session interface {
	// Navigate loads url and waits for the network to go idle, bounded by timeout.
	// A deadline overrun is reported as ErrTimeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Document snapshots the rendered DOM.
	Document(ctx context.Context) (Document, error)
	Close() error
}

// Extractor inspects a rendered document and returns a candidate URL.
// An empty string with a nil error means the document holds no qualifying link.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (string, error)
}

// ResolvedLookup answers whether an entity already has a persisted URL.
type ResolvedLookup interface {
	Resolved(id string) bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper pauses the caller. Sleeps are not cancellable.
type Sleeper interface {
	Sleep(d time.Duration)
}
