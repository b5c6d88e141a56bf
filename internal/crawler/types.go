// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"time"
	"unicode/utf8"
)

// Entity is a catalog item whose website is being resolved. ID is the identity key.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Outcome classifies how an entity ended within a single run.
type Outcome string

// Outcome values produced by the extraction worker.
const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	OutcomeFailed   Outcome = "failed"
)

// Result is the per-entity product of one worker invocation.
type Result struct {
	Entity   Entity
	Outcome  Outcome
	URL      string
	Attempts int
	Duration time.Duration
	Err      error
}

// Resolved reports whether the result carries a URL worth persisting.
func (r Result) Resolved() bool {
	return r.Outcome == OutcomeFound && r.URL != ""
}

// Document is a rendered page snapshot handed to an Extractor.
type Document struct {
	URL      string
	FinalURL string
	HTML     string
}

// Report summarizes a scheduler run.
type Report struct {
	RunID           string        `json:"run_id"`
	CatalogSize     int           `json:"catalog_size"`
	Outstanding     int           `json:"outstanding"`
	Batches         int           `json:"batches"`
	ResolvedThisRun int           `json:"resolved_this_run"`
	NotFound        int           `json:"not_found"`
	Failed          int           `json:"failed"`
	Attempts        int           `json:"attempts"`
	TotalResolved   int           `json:"total_resolved"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Error taxonomy for per-entity and run-level failures.
var (
	// ErrTimeout marks a navigation that exceeded its deadline. Retryable.
	ErrTimeout = errors.New("navigation timeout")
	// ErrTransient wraps any other session failure. Retryable.
	ErrTransient = errors.New("transient session failure")
	// ErrCatalogMissing aborts a run before any work starts.
	ErrCatalogMissing = errors.New("entity catalog not found")
)

// ErrorNoteLimit bounds error text carried on results and progress events.
const ErrorNoteLimit = 50

// Truncate shortens an error message for progress reporting.
func Truncate(msg string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:limit])
}
