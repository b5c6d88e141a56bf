// Package resume computes the outstanding work for a run from the catalog and
// the persisted results of earlier runs.
package resume

import "github.com/allofdaniel/placecrawl/internal/crawler"

// Outstanding returns, in catalog order, every entity whose id has no resolved
// URL in done. Repeated ids keep their first occurrence only. The result is a
// fresh slice; entities and done are not modified.
func Outstanding(entities []crawler.Entity, done crawler.ResolvedLookup) []crawler.Entity {
	out := make([]crawler.Entity, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		if done != nil && done.Resolved(e.ID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// MapLookup adapts a plain id→url map to crawler.ResolvedLookup.
type MapLookup map[string]string

// Resolved reports whether id maps to a non-empty URL.
func (m MapLookup) Resolved(id string) bool {
	return m[id] != ""
}
