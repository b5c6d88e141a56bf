// Package memory keeps snapshots in-process for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/allofdaniel/placecrawl/internal/storage"
)

// Snapshot stores the latest written bytes and counts writes.
type Snapshot struct {
	mu     sync.RWMutex
	data   []byte
	exists bool
	writes int
	err    error
}

// NewSnapshot creates an empty in-memory backend.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// NewSnapshotWith creates a backend pre-seeded with data.
func NewSnapshotWith(data []byte) *Snapshot {
	return &Snapshot{data: append([]byte(nil), data...), exists: true}
}

// Read returns a copy of the stored bytes or storage.ErrNotExist.
func (s *Snapshot) Read(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists {
		return nil, storage.ErrNotExist
	}
	return append([]byte(nil), s.data...), nil
}

// Write replaces the stored bytes with a copy of data.
func (s *Snapshot) Write(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data = append([]byte(nil), data...)
	s.exists = true
	s.writes++
	return nil
}

// FailWrites makes subsequent writes return err; nil restores normal behavior.
func (s *Snapshot) FailWrites(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Writes returns the number of successful writes.
func (s *Snapshot) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Bytes returns a copy of the current snapshot.
func (s *Snapshot) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.data...)
}

// URI identifies the backend in logs.
func (s *Snapshot) URI() string {
	return "memory://snapshot"
}
