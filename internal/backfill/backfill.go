// Package backfill writes resolved websites back into facility data files.
package backfill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/catalog"
	"github.com/allofdaniel/placecrawl/internal/storage/local"
)

// Lookup returns the resolved website for an entity id. store.Store satisfies it.
type Lookup interface {
	Get(id string) (string, bool)
}

// FileResult reports what happened to one data file.
type FileResult struct {
	Path    string `json:"path"`
	Updated int    `json:"updated"`
}

// Backfiller applies a Lookup to facility files.
type Backfiller struct {
	lookup Lookup
	logger *zap.Logger
}

// New constructs a Backfiller.
func New(lookup Lookup, logger *zap.Logger) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{lookup: lookup, logger: logger.Named("backfill")}
}

// Apply runs ApplyFile over every path, stopping at the first error.
func (b *Backfiller) Apply(ctx context.Context, paths ...string) ([]FileResult, error) {
	results := make([]FileResult, 0, len(paths))
	for _, path := range paths {
		n, err := b.ApplyFile(ctx, path)
		if err != nil {
			return results, err
		}
		results = append(results, FileResult{Path: path, Updated: n})
	}
	return results, nil
}

// ApplyFile sets "website" on every facility that has none and whose id is
// resolved. The id comes from the trailing digits of kakaoUrl, falling back to
// the facility's own id. Field order is preserved and the file is rewritten
// only when at least one facility changed.
func (b *Backfiller) ApplyFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read facilities: %w", err)
	}
	root := gjson.ParseBytes(data)
	if !gjson.ValidBytes(data) || !root.IsArray() {
		return 0, fmt.Errorf("decode facilities %s: expected a JSON array", path)
	}

	out := data
	updated := 0
	var setErr error
	root.ForEach(func(index, item gjson.Result) bool {
		if catalog.Truthy(item.Get("website")) {
			return true
		}
		id := catalog.PlaceID(item.Get("kakaoUrl").String())
		if id == "" {
			id = strings.TrimSpace(item.Get("id").String())
		}
		if id == "" {
			return true
		}
		website, ok := b.lookup.Get(id)
		if !ok || website == "" {
			return true
		}
		raw, err := encodeString(website)
		if err != nil {
			setErr = err
			return false
		}
		out, err = sjson.SetRawBytes(out, strconv.FormatInt(index.Int(), 10)+".website", raw)
		if err != nil {
			setErr = fmt.Errorf("set website for %s: %w", id, err)
			return false
		}
		updated++
		b.logger.Info("website backfilled",
			zap.String("file", path),
			zap.String("id", id),
			zap.String("name", item.Get("name").String()),
			zap.String("url", website),
		)
		return true
	})
	if setErr != nil {
		return 0, setErr
	}
	if updated == 0 {
		return 0, nil
	}

	formatted := bytes.TrimRight(pretty.PrettyOptions(out, &pretty.Options{Indent: "  "}), "\n")
	backend, err := local.New(local.Config{Path: path})
	if err != nil {
		return 0, err
	}
	if err := backend.Write(ctx, formatted); err != nil {
		return 0, fmt.Errorf("write facilities: %w", err)
	}
	b.logger.Info("facility file updated", zap.String("file", path), zap.Int("updated", updated))
	return updated, nil
}

// encodeString renders s as a JSON string without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode website: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
