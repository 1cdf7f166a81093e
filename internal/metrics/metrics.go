// Package metrics provides Prometheus metrics for the PhonoEcho service.
// A nil *Manager is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Attempt outcomes.
const (
	OutcomeScored    = "scored"
	OutcomeFailed    = "failed"
	OutcomeMalformed = "malformed"
	OutcomeRejected  = "rejected"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

// WithRegistry uses a custom registry instead of a fresh one.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Manager) { m.runtime = true }
}

// Manager manages all Prometheus metrics of the service.
type Manager struct {
	namespace string
	registry  *prometheus.Registry
	runtime   bool

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	attempts           *prometheus.CounterVec
	assessmentDuration prometheus.Histogram
	pipelineWarnings   *prometheus.CounterVec

	coachingRequests *prometheus.CounterVec
	coachingDuration prometheus.Histogram

	activeSessions prometheus.Gauge
	hapticTasks    prometheus.Counter
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{namespace: "phonoecho"}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	m.attempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "attempts_total",
		Help:      "Recorded attempts by outcome",
	}, []string{"outcome"})

	m.assessmentDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "assessment_duration_seconds",
		Help:      "Latency of the pronunciation assessment call",
		Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
	})

	m.pipelineWarnings = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "pipeline_warnings_total",
		Help:      "Attempt pipeline steps that failed without failing the attempt",
	}, []string{"step"})

	m.coachingRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "coaching_requests_total",
		Help:      "Coaching feedback requests by result code",
	}, []string{"code"})

	m.coachingDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "coaching_duration_seconds",
		Help:      "Latency of a complete coaching stream",
		Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 120},
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "active_sessions",
		Help:      "Number of live practice sessions",
	})

	m.hapticTasks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "haptic_tasks_total",
		Help:      "Haptic playback tasks started",
	})

	return m
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTPRequest records one served request.
func (m *Manager) ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// ObserveAttempt records the outcome of one attempt.
func (m *Manager) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// ObserveAssessment records the latency of one assessment call.
func (m *Manager) ObserveAssessment(d time.Duration) {
	if m == nil {
		return
	}
	m.assessmentDuration.Observe(d.Seconds())
}

// ObserveWarning records a non-fatal pipeline step failure.
func (m *Manager) ObserveWarning(step string) {
	if m == nil {
		return
	}
	m.pipelineWarnings.WithLabelValues(step).Inc()
}

// ObserveCoaching records one coaching stream. code is "ok" on success.
func (m *Manager) ObserveCoaching(code string, d time.Duration) {
	if m == nil {
		return
	}
	m.coachingRequests.WithLabelValues(code).Inc()
	m.coachingDuration.Observe(d.Seconds())
}

// SetActiveSessions sets the live session gauge.
func (m *Manager) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// IncHapticTasks counts a started haptic task.
func (m *Manager) IncHapticTasks() {
	if m == nil {
		return
	}
	m.hapticTasks.Inc()
}
