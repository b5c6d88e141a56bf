// Package renderer drives a real browser through chromedp. Every session runs
// in its own browser process with a throwaway profile.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/crawler"
)

// Config controls how browsers are launched and what they present as.
type Config struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	// ExecPath overrides browser discovery when set.
	ExecPath string
	// StartTimeout bounds launching a browser for a new session.
	StartTimeout time.Duration
}

const (
	defaultStartTimeout = 30 * time.Second
	closeTimeout        = 10 * time.Second
)

// Chromedp implements crawler.Renderer on top of a shared exec allocator.
type Chromedp struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp prepares the allocator. No browser is started until Open.
func NewChromedp(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		return nil, fmt.Errorf("viewport must be positive, got %dx%d", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Chromedp{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger.Named("renderer"),
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Close shuts down the allocator and any browser still attached to it.
func (c *Chromedp) Close() {
	c.allocCancel()
}

// Open launches a fresh browser and returns a session bound to its first tab.
func (c *Chromedp) Open(ctx context.Context) (crawler.Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocator)
	s := &session{
		ctx:    tabCtx,
		cancel: tabCancel,
		cfg:    c.cfg,
		idle:   newIdleWatcher(),
	}
	chromedp.ListenTarget(tabCtx, s.idle.observe)

	startCtx, cancel := context.WithTimeout(tabCtx, c.cfg.StartTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(startCtx, s.emulate()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	c.logger.Debug("browser session opened")
	return s, nil
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	idle   *idleWatcher
}

// emulate pins the identity and viewport and turns on lifecycle events.
func (s *session) emulate() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		err := emulation.SetDeviceMetricsOverride(int64(s.cfg.ViewportWidth), int64(s.cfg.ViewportHeight), 1, false).Do(ctx)
		if err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		return nil
	})
}

// Navigate loads url and blocks until the new document reports networkIdle.
func (s *session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, loaderID, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("navigation failed: %s", errorText)
		}
		if loaderID == "" {
			return nil
		}
		return s.idle.wait(ctx, loaderID)
	}))
	return classify(ctx, err, timeout)
}

// Document snapshots the rendered DOM and the final location.
func (s *session) Document(ctx context.Context) (crawler.Document, error) {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var doc crawler.Document
	err := chromedp.Run(runCtx,
		chromedp.Location(&doc.FinalURL),
		chromedp.OuterHTML("html", &doc.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("read document: %w", err)
	}
	doc.URL = doc.FinalURL
	return doc, nil
}

// Close asks the browser to exit and releases the session context.
func (s *session) Close() error {
	closeCtx, cancel := context.WithTimeout(s.ctx, closeTimeout)
	defer cancel()
	err := chromedp.Cancel(closeCtx)
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser session: %w", err)
	}
	return nil
}

// classify maps a navigation error onto the crawler error taxonomy. A caller
// cancellation is reported as such, never as a timeout.
func classify(caller context.Context, err error, timeout time.Duration) error {
	switch {
	case err == nil:
		return nil
	case caller.Err() != nil:
		return fmt.Errorf("navigate: %w", caller.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", crawler.ErrTimeout, timeout)
	default:
		return fmt.Errorf("navigate: %w", err)
	}
}
