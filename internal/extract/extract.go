// Package extract pulls the website link out of a rendered place page.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/allofdaniel/placecrawl/internal/crawler"
)

// Defaults match the place page layout: an h5 labelled "URL" inside the info block.
const (
	DefaultHeadingSelector = "h5"
	DefaultLabel           = "URL"
)

// LabeledLink finds the first absolute link in the block of a heading carrying Label.
type LabeledLink struct {
	HeadingSelector string
	Label           string
	// ExcludeSubstrings rejects links pointing back at the directory itself.
	ExcludeSubstrings []string
}

// NewLabeledLink fills empty fields with the defaults.
func NewLabeledLink(headingSelector, label string, exclude []string) *LabeledLink {
	if strings.TrimSpace(headingSelector) == "" {
		headingSelector = DefaultHeadingSelector
	}
	if label == "" {
		label = DefaultLabel
	}
	return &LabeledLink{
		HeadingSelector:   headingSelector,
		Label:             label,
		ExcludeSubstrings: append([]string(nil), exclude...),
	}
}

// Extract implements crawler.Extractor. Headings are visited in document order;
// for each one whose text contains Label, the closest enclosing div is searched
// for its first a[href^="http"]. An excluded link moves on to the next heading.
func (l *LabeledLink) Extract(ctx context.Context, doc crawler.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	root, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}

	var found string
	root.Find(l.HeadingSelector).EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if !strings.Contains(heading.Text(), l.Label) {
			return true
		}
		container := heading.Closest("div")
		if container.Length() == 0 {
			return true
		}
		href, ok := container.Find(`a[href^="http"]`).First().Attr("href")
		if !ok || l.excluded(href) {
			return true
		}
		found = strings.TrimSpace(href)
		return false
	})
	return found, nil
}

func (l *LabeledLink) excluded(href string) bool {
	for _, sub := range l.ExcludeSubstrings {
		if sub != "" && strings.Contains(href, sub) {
			return true
		}
	}
	return false
}

// Func adapts a function to crawler.Extractor.
type Func func(ctx context.Context, doc crawler.Document) (string, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, doc crawler.Document) (string, error) {
	return f(ctx, doc)
}
