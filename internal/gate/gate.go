// Package gate provides bounded admission control for in-flight extractions.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is used when a non-positive capacity is supplied.
const DefaultCapacity = 3

// Gate admits at most Capacity holders at a time. It is safe for concurrent use.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	peak     atomic.Int64
	gauge    prometheus.Gauge
}

// New creates a Gate. gauge is optional and tracks current holders.
func New(capacity int, gauge prometheus.Gauge) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		gauge:    gauge,
	}
}

// Acquire blocks until a slot is free or ctx ends. Every successful Acquire
// must be paired with exactly one Release.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("gate acquire: %w", err)
	}
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if g.gauge != nil {
		g.gauge.Inc()
	}
	return nil
}

// Release returns a slot taken by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	if g.gauge != nil {
		g.gauge.Dec()
	}
	g.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released however fn exits,
// including by panic.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// Capacity returns the configured bound.
func (g *Gate) Capacity() int {
	return g.capacity
}

// InFlight returns the current number of holders.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of simultaneous holders observed.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}
