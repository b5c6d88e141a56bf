// Package worker resolves one entity at a time: it drives browser attempts,
// retries retryable failures and classifies the final outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/gate"
	"github.com/allofdaniel/placecrawl/internal/metrics"
	"github.com/allofdaniel/placecrawl/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// PlaceHost is the host serving one page per entity at /<id>.
	PlaceHost string
	// RetryCount is the maximum number of attempts per entity.
	RetryCount     int
	AttemptTimeout time.Duration
	// SettleDelay runs after navigation so late scripts can render.
	SettleDelay time.Duration
	RunID       uuid.UUID
	// Pacer, when set, is consulted before every navigation.
	Pacer Pacer
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// Pacer throttles navigations. ratelimit.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

const (
	defaultRetryCount     = 2
	defaultAttemptTimeout = 30 * time.Second
)

// Worker turns an Entity into a Result. It is safe for concurrent use; the only
// state shared between calls is the gate.
type Worker struct {
	gate      *gate.Gate
	renderer  crawler.Renderer
	extractor crawler.Extractor
	clock     crawler.Clock
	sleeper   crawler.Sleeper
	emitter   progress.Emitter
	metrics   *metrics.Metrics
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. emitter, m and logger may be nil.
func New(
	g *gate.Gate,
	renderer crawler.Renderer,
	extractor crawler.Extractor,
	clock crawler.Clock,
	sleeper crawler.Sleeper,
	emitter progress.Emitter,
	m *metrics.Metrics,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/allofdaniel/placecrawl/internal/worker")
	}
	return &Worker{
		gate:      g,
		renderer:  renderer,
		extractor: extractor,
		clock:     clock,
		sleeper:   sleeper,
		emitter:   emitter,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// PageURL is the place page rendered for an entity.
func (w *Worker) PageURL(id string) string {
	return (&url.URL{Scheme: "https", Host: w.cfg.PlaceHost, Path: "/" + id}).String()
}

// Extract resolves entity. It never returns an error: failures are folded into
// the Result. One gate slot is held for the whole attempt loop.
func (w *Worker) Extract(ctx context.Context, entity crawler.Entity) crawler.Result {
	start := w.clock.Now()
	ctx, span := w.cfg.Tracer.Start(ctx, "worker.Extract", trace.WithAttributes(
		attribute.String("entity.id", entity.ID),
	))
	defer span.End()

	var res crawler.Result
	err := w.gate.Do(ctx, func(ctx context.Context) error {
		res = w.attempts(ctx, entity)
		return nil
	})
	if err != nil {
		res = crawler.Result{Entity: entity, Outcome: crawler.OutcomeFailed, Err: err}
	}
	res.Duration = w.clock.Now().Sub(start)
	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Int("attempts", res.Attempts),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "entity failed")
	}
	w.emitter.Emit(progress.EntityDone(w.cfg.RunID, w.clock.Now(), res))
	return res
}

func (w *Worker) attempts(ctx context.Context, entity crawler.Entity) crawler.Result {
	target := w.PageURL(entity.ID)
	logger := w.logger.With(
		zap.String("entity_id", entity.ID),
		zap.String("name", entity.Name),
		zap.String("page", target),
	)
	var lastErr error

	for attempt := 1; attempt <= w.cfg.RetryCount; attempt++ {
		started := w.clock.Now()
		actx, span := w.cfg.Tracer.Start(ctx, "worker.attempt", trace.WithAttributes(attribute.Int("attempt", attempt)))
		link, err := w.attempt(actx, target)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "attempt failed")
		}
		span.End()
		elapsed := w.clock.Now().Sub(started)

		switch {
		case err == nil && link != "":
			w.metrics.ObserveAttempt("found", elapsed)
			logger.Info("website found", zap.Int("attempt", attempt), zap.String("url", link))
			return crawler.Result{Entity: entity, Outcome: crawler.OutcomeFound, URL: link, Attempts: attempt}
		case err == nil:
			w.metrics.ObserveAttempt("not_found", elapsed)
			// A clean page without a link is terminal even with budget left.
			logger.Info("no website on page",
				zap.Int("attempt", attempt),
				zap.Int("retry_skipped", w.cfg.RetryCount-attempt),
			)
			return crawler.Result{Entity: entity, Outcome: crawler.OutcomeNotFound, Attempts: attempt}
		}

		lastErr = err
		kind := "error"
		if errors.Is(err, crawler.ErrTimeout) {
			kind = "timeout"
		}
		w.metrics.ObserveAttempt(kind, elapsed)
		note := crawler.Truncate(err.Error(), crawler.ErrorNoteLimit)
		logger.Warn("attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", w.cfg.RetryCount),
			zap.String("kind", kind),
			zap.Error(err),
		)
		w.emitter.Emit(progress.Event{
			RunID:    w.cfg.RunID,
			TS:       w.clock.Now(),
			Stage:    progress.StageAttemptFailed,
			EntityID: entity.ID,
			Name:     entity.Name,
			Attempt:  attempt,
			Dur:      elapsed,
			Note:     note,
		})
		if ctx.Err() != nil {
			return crawler.Result{Entity: entity, Outcome: crawler.OutcomeFailed, Attempts: attempt, Err: err}
		}
	}
	return crawler.Result{Entity: entity, Outcome: crawler.OutcomeFailed, Attempts: w.cfg.RetryCount, Err: lastErr}
}

// attempt runs one isolated session. The session is closed before returning on
// every path; a panic in a collaborator becomes a transient error.
func (w *Worker) attempt(ctx context.Context, target string) (link string, err error) {
	defer func() {
		if r := recover(); r != nil {
			link, err = "", fmt.Errorf("%w: panic: %v", crawler.ErrTransient, r)
		}
	}()

	if w.cfg.Pacer != nil {
		if err := w.cfg.Pacer.Wait(ctx, target); err != nil {
			return "", wrap("pace", err)
		}
	}

	session, err := w.renderer.Open(ctx)
	if err != nil {
		return "", wrap("open session", err)
	}
	defer w.closeSession(session)

	if err := session.Navigate(ctx, target, w.cfg.AttemptTimeout); err != nil {
		return "", wrap("navigate", err)
	}
	w.sleeper.Sleep(w.cfg.SettleDelay)

	doc, err := session.Document(ctx)
	if err != nil {
		return "", wrap("read document", err)
	}
	if doc.URL == "" {
		doc.URL = target
	}
	link, err = w.extractor.Extract(ctx, doc)
	if err != nil {
		return "", wrap("extract", err)
	}
	return link, nil
}

func (w *Worker) closeSession(session crawler.Session) {
	if err := session.Close(); err != nil {
		w.logger.Debug("session close failed", zap.Error(err))
	}
}

// wrap keeps timeouts as ErrTimeout and marks everything else ErrTransient.
func wrap(op string, err error) error {
	if errors.Is(err, crawler.ErrTimeout) || errors.Is(err, crawler.ErrTransient) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, crawler.ErrTransient, err)
}
