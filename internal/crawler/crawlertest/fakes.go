// Package crawlertest provides scripted fakes of the crawler collaborators.
package crawlertest

import (
	"context"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allofdaniel/placecrawl/internal/crawler"
)

// Step scripts one attempt for an entity.
type Step struct {
	// NavErr is returned by Navigate.
	NavErr error
	// DocErr is returned by Document.
	DocErr error
	// Link becomes the document body; LinkExtractor returns it verbatim.
	Link string
	// Delay holds Navigate open, honoring ctx.
	Delay time.Duration
	// Panic makes Navigate panic with this value.
	Panic string
}

// Renderer hands out sessions that replay a per-entity script. The entity id
// is the last path segment of the navigated URL. Once a script is exhausted
// its last step repeats; entities without a script render an empty page.
type Renderer struct {
	OpenErr  error
	CloseErr error

	mu     sync.Mutex
	script map[string][]Step
	calls  map[string]int
	order  []string

	opened atomic.Int64
	closed atomic.Int64
	active atomic.Int64
	peak   atomic.Int64
}

// NewRenderer builds a Renderer from script.
func NewRenderer(script map[string][]Step) *Renderer {
	if script == nil {
		script = map[string][]Step{}
	}
	return &Renderer{script: script, calls: map[string]int{}}
}

// Open implements crawler.Renderer.
func (r *Renderer) Open(ctx context.Context) (crawler.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	r.opened.Add(1)
	n := r.active.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return &session{r: r}, nil
}

func (r *Renderer) next(id string) Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
	i := r.calls[id]
	r.calls[id] = i + 1
	steps := r.script[id]
	switch {
	case len(steps) == 0:
		return Step{}
	case i < len(steps):
		return steps[i]
	default:
		return steps[len(steps)-1]
	}
}

// Attempts returns how many navigations targeted id.
func (r *Renderer) Attempts(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

// TotalAttempts returns the number of navigations across all entities.
func (r *Renderer) TotalAttempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Order returns entity ids in navigation order.
func (r *Renderer) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Opened counts sessions handed out.
func (r *Renderer) Opened() int { return int(r.opened.Load()) }

// Closed counts sessions whose Close was called.
func (r *Renderer) Closed() int { return int(r.closed.Load()) }

// PeakSessions is the highest number of simultaneously open sessions.
func (r *Renderer) PeakSessions() int { return int(r.peak.Load()) }

type session struct {
	r      *Renderer
	url    string
	step   Step
	closed atomic.Bool
}

func (s *session) Navigate(ctx context.Context, url string, _ time.Duration) error {
	s.url = url
	s.step = s.r.next(path.Base(url))
	if s.step.Delay > 0 {
		select {
		case <-time.After(s.step.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.step.Panic != "" {
		panic(s.step.Panic)
	}
	return s.step.NavErr
}

func (s *session) Document(context.Context) (crawler.Document, error) {
	if s.step.DocErr != nil {
		return crawler.Document{}, s.step.DocErr
	}
	return crawler.Document{URL: s.url, FinalURL: s.url, HTML: s.step.Link}, nil
}

func (s *session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.r.closed.Add(1)
		s.r.active.Add(-1)
	}
	return s.r.CloseErr
}

// LinkExtractor returns the document body as the link.
type LinkExtractor struct{}

// Extract implements crawler.Extractor.
func (LinkExtractor) Extract(_ context.Context, doc crawler.Document) (string, error) {
	return doc.HTML, nil
}

// Sleeper records requested sleeps without blocking.
type Sleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

// Sleep implements crawler.Sleeper.
func (s *Sleeper) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
}

// Slept returns the recorded durations.
func (s *Sleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// Clock returns a fixed instant.
type Clock struct {
	T time.Time
}

// Now implements crawler.Clock.
func (c Clock) Now() time.Time {
	return c.T
}
