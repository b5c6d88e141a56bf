// Package scheduler drives a crawl run: it splits outstanding entities into
// batches, fans each batch out to workers, merges results and checkpoints the
// result store after every batch.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/allofdaniel/placecrawl/internal/crawler"
	"github.com/allofdaniel/placecrawl/internal/metrics"
	"github.com/allofdaniel/placecrawl/internal/progress"
	"github.com/allofdaniel/placecrawl/internal/resume"
)

// DefaultBatchSize is used when a non-positive batch size is supplied.
const DefaultBatchSize = 10

// Config controls batching and pacing.
type Config struct {
	BatchSize     int
	BatchCooldown time.Duration
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// EntityWorker resolves a single entity. worker.Worker satisfies it.
type EntityWorker interface {
	Extract(ctx context.Context, entity crawler.Entity) crawler.Result
}

// ResultStore is the mutable id to URL mapping the scheduler checkpoints.
// store.Store satisfies it.
type ResultStore interface {
	crawler.ResolvedLookup
	Merge(results []crawler.Result) int
	Persist(ctx context.Context) error
	Len() int
	URI() string
}

// Scheduler runs batches strictly in order. It is the only writer to the store.
type Scheduler struct {
	worker  EntityWorker
	store   ResultStore
	clock   crawler.Clock
	sleeper crawler.Sleeper
	emitter progress.Emitter
	metrics *metrics.Metrics
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Scheduler. emitter, m and logger may be nil.
func New(
	w EntityWorker,
	store ResultStore,
	clock crawler.Clock,
	sleeper crawler.Sleeper,
	emitter progress.Emitter,
	m *metrics.Metrics,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/allofdaniel/placecrawl/internal/scheduler")
	}
	return &Scheduler{
		worker:  w,
		store:   store,
		clock:   clock,
		sleeper: sleeper,
		emitter: emitter,
		metrics: m,
		cfg:     cfg,
		logger:  logger.Named("scheduler"),
	}
}

// Partition splits entities into consecutive batches of at most size, in order.
func Partition(entities []crawler.Entity, size int) [][]crawler.Entity {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]crawler.Entity, 0, (len(entities)+size-1)/size)
	for start := 0; start < len(entities); start += size {
		end := min(start+size, len(entities))
		batches = append(batches, entities[start:end])
	}
	return batches
}

// Run processes every outstanding entity of catalog. Only a checkpoint failure
// is returned as an error; per-entity failures are counted in the Report.
// Cancelling ctx stops new batches from starting; the store is still persisted.
func (s *Scheduler) Run(ctx context.Context, runID uuid.UUID, catalog []crawler.Entity) (crawler.Report, error) {
	start := s.clock.Now()
	logger := s.logger.With(zap.String("run_id", runID.String()))

	outstanding := resume.Outstanding(catalog, s.store)
	batches := Partition(outstanding, s.cfg.BatchSize)
	report := crawler.Report{
		RunID:       runID.String(),
		CatalogSize: len(catalog),
		Outstanding: len(outstanding),
		Batches:     len(batches),
	}
	s.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Count: len(catalog), Total: len(outstanding)})
	logger.Info("run started",
		zap.Int("catalog", len(catalog)),
		zap.Int("outstanding", len(outstanding)),
		zap.Int("batches", len(batches)),
		zap.String("store", s.store.URI()),
	)

	if len(outstanding) == 0 {
		logger.Info("nothing outstanding, store left untouched")
		return s.finish(runID, start, report), nil
	}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			logger.Warn("run interrupted, skipping remaining batches",
				zap.Int("next_batch", i+1),
				zap.Error(err),
			)
			break
		}
		number := i + 1
		s.emit(progress.Event{
			RunID:   runID,
			Stage:   progress.StageBatchStart,
			Batch:   number,
			Batches: len(batches),
			Count:   len(batch),
		})
		logger.Debug("batch started", zap.Int("batch", number), zap.Int("size", len(batch)))

		bctx, span := s.cfg.Tracer.Start(ctx, "scheduler.batch", trace.WithAttributes(
			attribute.String("run.id", runID.String()),
			attribute.Int("batch", number),
			attribute.Int("size", len(batch)),
		))
		results := s.runBatch(bctx, batch)
		tally(&report, results)
		added := s.store.Merge(results)
		report.ResolvedThisRun += added
		span.SetAttributes(attribute.Int("resolved", added))

		if err := s.checkpoint(bctx, runID, number, added); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "checkpoint failed")
			span.End()
			return s.fail(runID, start, report, err)
		}
		span.End()
		if number < len(batches) {
			s.sleeper.Sleep(s.cfg.BatchCooldown)
		}
	}

	if err := s.persist(ctx); err != nil {
		return s.fail(runID, start, report, fmt.Errorf("final persist: %w", err))
	}
	return s.finish(runID, start, report), nil
}

// runBatch starts one goroutine per entity and joins them all. A panic is
// confined to its own entity.
func (s *Scheduler) runBatch(ctx context.Context, batch []crawler.Entity) []crawler.Result {
	results := make([]crawler.Result, len(batch))
	var g errgroup.Group
	for i, entity := range batch {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("worker panicked",
						zap.String("entity_id", entity.ID),
						zap.Any("panic", r),
					)
					results[i] = crawler.Result{
						Entity:  entity,
						Outcome: crawler.OutcomeFailed,
						Err:     fmt.Errorf("%w: worker panic: %v", crawler.ErrTransient, r),
					}
				}
			}()
			results[i] = s.worker.Extract(ctx, entity)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) checkpoint(ctx context.Context, runID uuid.UUID, batch, added int) error {
	if err := s.persist(ctx); err != nil {
		return fmt.Errorf("checkpoint after batch %d: %w", batch, err)
	}
	total := s.store.Len()
	s.emit(progress.Event{RunID: runID, Stage: progress.StageCheckpoint, Batch: batch, Count: added, Total: total})
	s.logger.Info("checkpoint saved",
		zap.String("run_id", runID.String()),
		zap.Int("batch", batch),
		zap.Int("added", added),
		zap.Int("resolved_total", total),
	)
	return nil
}

// persist ignores cancellation so an interrupted run still lands its results.
func (s *Scheduler) persist(ctx context.Context) error {
	err := s.store.Persist(context.WithoutCancel(ctx))
	s.metrics.ObservePersist(err)
	return err
}

func (s *Scheduler) finish(runID uuid.UUID, start time.Time, report crawler.Report) crawler.Report {
	report.TotalResolved = s.store.Len()
	report.Elapsed = s.clock.Now().Sub(start)
	s.emit(progress.Event{
		RunID: runID,
		Stage: progress.StageRunDone,
		Count: report.ResolvedThisRun,
		Total: report.TotalResolved,
		Dur:   report.Elapsed,
	})
	s.logger.Info("run finished",
		zap.String("run_id", runID.String()),
		zap.Int("resolved_this_run", report.ResolvedThisRun),
		zap.Int("not_found", report.NotFound),
		zap.Int("failed", report.Failed),
		zap.Int("attempts", report.Attempts),
		zap.Int("resolved_total", report.TotalResolved),
		zap.Int("catalog", report.CatalogSize),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report
}

func (s *Scheduler) fail(runID uuid.UUID, start time.Time, report crawler.Report, err error) (crawler.Report, error) {
	report.TotalResolved = s.store.Len()
	report.Elapsed = s.clock.Now().Sub(start)
	s.emit(progress.Event{
		RunID: runID,
		Stage: progress.StageRunError,
		Dur:   report.Elapsed,
		Note:  crawler.Truncate(err.Error(), 200),
	})
	s.logger.Error("run aborted", zap.String("run_id", runID.String()), zap.Error(err))
	return report, err
}

func (s *Scheduler) emit(evt progress.Event) {
	evt.TS = s.clock.Now()
	s.emitter.Emit(evt)
}

func tally(report *crawler.Report, results []crawler.Result) {
	for _, res := range results {
		report.Attempts += res.Attempts
		switch res.Outcome {
		case crawler.OutcomeFound:
		case crawler.OutcomeNotFound:
			report.NotFound++
		default:
			report.Failed++
		}
	}
}
