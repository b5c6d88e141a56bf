// Package metrics exposes Prometheus collectors for the crawler and its status listener.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry and the collectors the crawler updates directly.
// Methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	gateInFlight    prometheus.Gauge
	attemptDuration *prometheus.HistogramVec
	persists        *prometheus.CounterVec
	pacingWait      *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New builds a registry with the runtime collectors and the crawler collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		registry: reg,
		gateInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "placecrawl_gate_in_flight",
			Help: "Entities currently holding a concurrency slot.",
		}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "placecrawl_attempt_duration_seconds",
			Help:    "Duration of a single browser attempt, labeled by result.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45},
		}, []string{"result"}),
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placecrawl_store_persists_total",
			Help: "Result store writes, labeled by status.",
		}, []string{"status"}),
		pacingWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "placecrawl_pacing_wait_seconds",
			Help:    "Time spent waiting for a navigation token, labeled by host.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"host"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.gateInFlight, m.attemptDuration, m.persists, m.pacingWait, m.httpRequests, m.httpDuration)
	return m
}

// Registry exposes the registry so sinks can register their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GateInFlight is the gauge the concurrency gate reports to.
func (m *Metrics) GateInFlight() prometheus.Gauge {
	if m == nil {
		return nil
	}
	return m.gateInFlight
}

// ObserveAttempt records one browser attempt; result is found, not_found, timeout or error.
func (m *Metrics) ObserveAttempt(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.attemptDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObservePersist counts a store write.
func (m *Metrics) ObservePersist(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.persists.WithLabelValues(status).Inc()
}

// ObservePacingDelay records a wait imposed by the navigation rate limit.
func (m *Metrics) ObservePacingDelay(host string, d time.Duration) {
	if m == nil {
		return
	}
	m.pacingWait.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
