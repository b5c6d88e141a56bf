// Package catalog reads the entity catalog a run works through and derives it
// from facility data files.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/storage/local"
)

var placeIDPattern = regexp.MustCompile(`/(\d+)$`)

// PlaceID returns the trailing numeric segment of a place URL, or "".
func PlaceID(placeURL string) string {
	m := placeIDPattern.FindStringSubmatch(strings.TrimSpace(placeURL))
	if m == nil {
		return ""
	}
	return m[1]
}

// Load reads a JSON array of {id, name, ...}. A missing file is reported as
// crawler.ErrCatalogMissing. Entries without an id are skipped; numeric ids are
// accepted and rendered in decimal.
func Load(path string) ([]crawler.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", crawler.ErrCatalogMissing, path)
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode catalog %s: invalid JSON", path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("decode catalog %s: expected a JSON array", path)
	}
	var entities []crawler.Entity
	root.ForEach(func(_, item gjson.Result) bool {
		id := strings.TrimSpace(item.Get("id").String())
		if id == "" {
			return true
		}
		entities = append(entities, crawler.Entity{ID: id, Name: item.Get("name").String()})
		return true
	})
	return entities, nil
}

// Entry is one catalog record derived from facility data.
type Entry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	PlaceURL string `json:"kakaoUrl"`
}

// DeriveMissing scans facility files for entries lacking a website whose place
// URL ends in a numeric id. Order follows the files, then the entries within them.
func DeriveMissing(paths ...string) ([]Entry, error) {
	entries := []Entry{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read facilities: %w", err)
		}
		root := gjson.ParseBytes(data)
		if !gjson.ValidBytes(data) || !root.IsArray() {
			return nil, fmt.Errorf("decode facilities %s: expected a JSON array", path)
		}
		root.ForEach(func(_, item gjson.Result) bool {
			if Truthy(item.Get("website")) {
				return true
			}
			placeURL := item.Get("kakaoUrl").String()
			id := PlaceID(placeURL)
			if id == "" {
				return true
			}
			entries = append(entries, Entry{
				ID:       id,
				Name:     item.Get("name").String(),
				Type:     item.Get("type").String(),
				PlaceURL: placeURL,
			})
			return true
		})
	}
	return entries, nil
}

// Truthy reports whether a facility field holds a usable value: present,
// not null, not false and not an empty string.
func Truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	default:
		return v.Exists()
	}
}

// Write stores entries as an indented JSON array, replacing path atomically.
func Write(ctx context.Context, path string, entries []Entry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	backend, err := local.New(local.Config{Path: path})
	if err != nil {
		return err
	}
	if err := backend.Write(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
