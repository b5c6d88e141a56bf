package renderer

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
)

const lifecycleNetworkIdle = "networkIdle"

// idleWatcher records which document loaders have reached network idle. Events
// can arrive before the navigation command returns, so they are kept until asked for.
type idleWatcher struct {
	mu      sync.Mutex
	idle    map[cdp.LoaderID]struct{}
	changed chan struct{}
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{
		idle:    make(map[cdp.LoaderID]struct{}),
		changed: make(chan struct{}),
	}
}

func (w *idleWatcher) observe(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != lifecycleNetworkIdle {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.idle[e.LoaderID] = struct{}{}
	close(w.changed)
	w.changed = make(chan struct{})
}

func (w *idleWatcher) wait(ctx context.Context, loader cdp.LoaderID) error {
	for {
		w.mu.Lock()
		_, done := w.idle[loader]
		changed := w.changed
		w.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
