// Package metrics holds the Prometheus collectors shared by the service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat answer outcomes.
const (
	OutcomeAnswered    = "answered"
	OutcomeFallback    = "fallback"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
)

// Ingestion chunk results.
const (
	IngestStored = "stored"
	IngestFailed = "failed"
)

// Metrics groups the collectors and the registry they live in.
type Metrics struct {
	registry         *prometheus.Registry
	chatAnswers      *prometheus.CounterVec
	degradedSearches prometheus.Counter
	upstreamLatency  *prometheus.HistogramVec
	ingestedChunks   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		chatAnswers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "chat",
			Name:      "answers_total",
			Help:      "Chat queries handled, by outcome.",
		}, []string{"outcome"}),
		degradedSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "vector",
			Name:      "degraded_searches_total",
			Help:      "Vector searches answered with no hits because the index failed.",
		}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tutor",
			Name:      "upstream_request_seconds",
			Help:      "Latency of calls to upstream services.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "operation"}),
		ingestedChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks processed by ingestion, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.chatAnswers,
		m.degradedSearches,
		m.upstreamLatency,
		m.ingestedChunks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ChatAnswer(outcome string) {
	if m == nil {
		return
	}
	m.chatAnswers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DegradedSearch() {
	if m == nil {
		return
	}
	m.degradedSearches.Inc()
}

// ObserveUpstream records how long a call to service took since start.
func (m *Metrics) ObserveUpstream(service, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(service, operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IngestedChunks(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestedChunks.WithLabelValues(result).Add(float64(n))
}
