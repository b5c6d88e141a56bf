// Package sinks implements concrete progress consumers: a console printer,
// structured logging, Prometheus collectors, an in-memory status tracker and a
// Pub/Sub publisher for run milestones.
// Each sink satisfies progress.Sink.
package sinks
