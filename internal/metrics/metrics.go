// Package metrics exposes Prometheus collectors for extraction attempts,
// extraction outcomes, history writes, and HTTP API requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"platescan/internal/services/gemini"
)

const namespace = "platescan"

// Metrics owns a private registry so tests and multiple servers never collide
// on the global one.
type Metrics struct {
	registry *prometheus.Registry

	attempts           *prometheus.CounterVec
	attemptDuration    *prometheus.HistogramVec
	extractions        *prometheus.CounterVec
	extractionAttempts prometheus.Histogram
	extractionDuration prometheus.Histogram
	historyWrites      *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gemini_attempts_total",
			Help:      "Gemini generateContent attempts by outcome.",
		}, []string{"outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gemini_attempt_duration_seconds",
			Help:      "Duration of a single Gemini attempt.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 7.5, 10, 15, 20},
		}, []string{"outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Plate extractions by final outcome.",
		}, []string{"outcome"}),
		extractionAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_attempts",
			Help:      "Attempts used per extraction.",
			Buckets:   []float64{0, 1, 2, 3},
		}),
		extractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end extraction duration including backoff.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 10, 20, 30, 45, 65},
		}),
		historyWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "History mutations by operation.",
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_time_seconds",
			Help:      "HTTP API response time.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 65},
		}, []string{"method", "path"}),
	}
	m.registry.MustRegister(
		m.attempts,
		m.attemptDuration,
		m.extractions,
		m.extractionAttempts,
		m.extractionDuration,
		m.historyWrites,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(kind gemini.Kind) string {
	if kind == "" {
		return "success"
	}
	return string(kind)
}

// AttemptFinished implements gemini.Observer.
func (m *Metrics) AttemptFinished(_ int, kind gemini.Kind, elapsed time.Duration) {
	label := outcome(kind)
	m.attempts.WithLabelValues(label).Inc()
	m.attemptDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// ExtractionFinished implements gemini.Observer.
func (m *Metrics) ExtractionFinished(kind gemini.Kind, attempts int, elapsed time.Duration) {
	m.extractions.WithLabelValues(outcome(kind)).Inc()
	m.extractionAttempts.Observe(float64(attempts))
	m.extractionDuration.Observe(elapsed.Seconds())
}

// HistoryWrite counts a save, delete, or clear.
func (m *Metrics) HistoryWrite(op string) {
	m.historyWrites.WithLabelValues(op).Inc()
}

// ObserveHTTP records one API request. path should be the route template, not
// the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
