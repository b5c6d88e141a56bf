package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/allofdaniel/placecrawl/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus collectors registered on
// the supplied registry.
type PrometheusSink struct {
	runsStarted     prometheus.Counter
	runsCompleted   *prometheus.CounterVec
	batches         prometheus.Counter
	entities        *prometheus.CounterVec
	attemptFailures prometheus.Counter
	entityDuration  *prometheus.HistogramVec
	checkpoints     prometheus.Counter
	resolved        prometheus.Gauge
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placecrawl_runs_started_total",
			Help: "Runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placecrawl_runs_completed_total",
			Help: "Runs completed partitioned by result.",
		}, []string{"result"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placecrawl_batches_started_total",
			Help: "Batches dispatched to workers.",
		}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placecrawl_entities_total",
			Help: "Entities processed partitioned by outcome.",
		}, []string{"outcome"}),
		attemptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placecrawl_attempt_failures_total",
			Help: "Retryable attempt failures (timeouts and session errors).",
		}),
		entityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "placecrawl_entity_duration_seconds",
			Help:    "Wall time per entity including retries and gate wait.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"outcome"}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placecrawl_checkpoints_total",
			Help: "Result store checkpoints persisted.",
		}),
		resolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "placecrawl_resolved_entities",
			Help: "Entities with a persisted website as of the last checkpoint.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.batches,
		s.entities,
		s.attemptFailures,
		s.entityDuration,
		s.checkpoints,
		s.resolved,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone:
			s.runsCompleted.WithLabelValues("success").Inc()
			s.resolved.Set(float64(evt.Total))
		case progress.StageRunError:
			s.runsCompleted.WithLabelValues("error").Inc()
		case progress.StageBatchStart:
			s.batches.Inc()
		case progress.StageAttemptFailed:
			s.attemptFailures.Inc()
		case progress.StageEntityDone:
			outcome := string(evt.Outcome)
			s.entities.WithLabelValues(outcome).Inc()
			if evt.Dur > 0 {
				s.entityDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
			}
		case progress.StageCheckpoint:
			s.checkpoints.Inc()
			s.resolved.Set(float64(evt.Total))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
