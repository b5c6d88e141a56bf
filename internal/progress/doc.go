// Package progress provides the run events, the non-blocking hub and the emitter
// interfaces the scheduler and workers use to report crawl progress. Events are
// delivered on a background goroutine to pluggable sinks such as the console,
// zap, Prometheus or the status tracker.
package progress
