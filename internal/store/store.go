// Package store holds the persisted id→URL mapping that makes runs resumable.
//
// The mapping only grows: empty URLs are never stored and an id that already
// has a URL keeps it. Every Persist writes a complete snapshot through the
// configured storage.Backend.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/storage"
)

// Store is the in-memory result map plus its durable backend. Reads are safe
// from any goroutine; Merge and Persist are expected from a single writer.
type Store struct {
	mu      sync.RWMutex
	urls    map[string]string
	backend storage.Backend
}

// Load reads the snapshot from backend. A missing snapshot yields an empty store.
func Load(ctx context.Context, backend storage.Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("store backend is required")
	}
	s := &Store{urls: make(map[string]string), backend: backend}
	data, err := backend.Read(ctx)
	switch {
	case errors.Is(err, storage.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load results: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	var raw map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode results from %s: %w", backend.URI(), err)
	}
	for id, url := range raw {
		if url != nil && *url != "" {
			s.urls[id] = *url
		}
	}
	return s, nil
}

// Resolved reports whether id has a stored URL.
func (s *Store) Resolved(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.urls[id] != ""
}

// Get returns the stored URL for id.
func (s *Store) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.urls[id]
	return url, ok
}

// Len returns the number of resolved ids.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urls)
}

// Merge inserts every resolved result whose id is not yet stored and returns
// the number of ids added. Unresolved results are discarded.
func (s *Store) Merge(results []crawler.Result) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, r := range results {
		if !r.Resolved() {
			continue
		}
		if _, exists := s.urls[r.Entity.ID]; exists {
			continue
		}
		s.urls[r.Entity.ID] = r.URL
		added++
	}
	return added
}

// Snapshot returns a copy of the mapping.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.urls))
	for k, v := range s.urls {
		out[k] = v
	}
	return out
}

// IDs returns the resolved ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.urls))
	for id := range s.urls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Persist writes the full mapping as indented UTF-8 JSON.
func (s *Store) Persist(ctx context.Context) error {
	data, err := Encode(s.Snapshot())
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("persist results to %s: %w", s.backend.URI(), err)
	}
	return nil
}

// URI identifies where checkpoints are written.
func (s *Store) URI() string {
	return s.backend.URI()
}

// Encode renders a mapping the way checkpoints are stored: keys sorted,
// two-space indent, non-ASCII and HTML characters left unescaped.
func Encode(urls map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(urls); err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return buf.Bytes(), nil
}
