package resume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allofdaniel/placecrawl/internal/crawler"
)

func catalog(ids ...string) []crawler.Entity {
	out := make([]crawler.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, crawler.Entity{ID: id, Name: "place-" + id})
	}
	return out
}

func ids(entities []crawler.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.ID)
	}
	return out
}

func TestOutstandingExcludesResolved(t *testing.T) {
	t.Parallel()

	done := MapLookup{"2": "https://two.example", "4": "https://four.example"}
	got := Outstanding(catalog("1", "2", "3", "4", "5"), done)
	require.Equal(t, []string{"1", "3", "5"}, ids(got))
}

func TestOutstandingTreatsEmptyValueAsUnresolved(t *testing.T) {
	t.Parallel()

	got := Outstanding(catalog("1", "2"), MapLookup{"1": ""})
	require.Equal(t, []string{"1", "2"}, ids(got))
}

func TestOutstandingIsIdempotent(t *testing.T) {
	t.Parallel()

	entities := catalog("10", "11", "12", "13")
	done := MapLookup{"11": "https://eleven.example"}
	first := Outstanding(entities, done)
	second := Outstanding(entities, done)
	require.Equal(t, first, second)
	require.Len(t, entities, 4, "input must not be modified")
}

func TestOutstandingCollapsesDuplicateIDs(t *testing.T) {
	t.Parallel()

	entities := []crawler.Entity{{ID: "7", Name: "first"}, {ID: "8"}, {ID: "7", Name: "second"}}
	got := Outstanding(entities, MapLookup{})
	require.Equal(t, []string{"7", "8"}, ids(got))
	require.Equal(t, "first", got[0].Name)
}

func TestOutstandingAllResolved(t *testing.T) {
	t.Parallel()

	done := MapLookup{"1": "u1", "2": "u2"}
	require.Empty(t, Outstanding(catalog("1", "2"), done))
}

func TestOutstandingNilLookup(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, ids(Outstanding(catalog("a", "b"), nil)))
}
