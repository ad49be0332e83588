package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bastion_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveSessions tracks currently active agent sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bastion_active_sessions",
			Help: "Number of active agent sessions",
		},
	)

	// SandboxesRunning tracks running sandboxes
	SandboxesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bastion_sandboxes_running",
			Help: "Number of running sandboxes",
		},
	)

	// SessionDuration tracks how long sessions run
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bastion_session_duration_seconds",
			Help:    "Session duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// AdapterEvents counts upstream protocol events seen by the stream
	// adapter, by event type
	AdapterEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_adapter_events_total",
			Help: "Total number of upstream events consumed by the stream adapter",
		},
		[]string{"event"},
	)

	// AdapterStreamsOpened counts logical streams opened by the adapter
	AdapterStreamsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_adapter_streams_opened_total",
			Help: "Total number of logical streams opened by the stream adapter",
		},
		[]string{"kind"},
	)

	// AdapterStreamsCompleted counts logical streams completed
	AdapterStreamsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_adapter_streams_completed_total",
			Help: "Total number of logical streams completed by the stream adapter",
		},
		[]string{"kind"},
	)

	// AdapterDeltas counts streaming delta emissions
	AdapterDeltas = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_adapter_deltas_total",
			Help: "Total number of text deltas emitted by the stream adapter",
		},
		[]string{"kind"},
	)

	// AdapterPassthroughs counts raw-fidelity passthrough messages
	AdapterPassthroughs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_adapter_passthroughs_total",
			Help: "Total number of passthrough messages emitted for unmodeled input",
		},
	)

	// AdapterSessionErrors counts terminal session.error failures
	AdapterSessionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_adapter_session_errors_total",
			Help: "Total number of terminal session errors",
		},
	)

	// SandboxReaps counts idle sandboxes recycled by the reaper
	SandboxReaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_sandbox_reaps_total",
			Help: "Total number of idle sandboxes recycled",
		},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/metrics", "/v1/process", "/v1/sessions":
		return path
	default:
		if len(path) > 13 && path[:13] == "/v1/sessions/" {
			return "/v1/sessions"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStart increments the active session gauge
func RecordSessionStart() {
	ActiveSessions.Inc()
}

// RecordSessionEnd decrements the active session gauge and records duration
func RecordSessionEnd(status string, durationSeconds float64) {
	ActiveSessions.Dec()
	SessionDuration.WithLabelValues(status).Observe(durationSeconds)
}

// SetSandboxesRunning sets the running sandbox count
func SetSandboxesRunning(count float64) {
	SandboxesRunning.Set(count)
}

// RecordSandboxReap records one recycled sandbox
func RecordSandboxReap() {
	SandboxReaps.Inc()
}

// RecordAdapterEvent records one upstream event consumed by the adapter
func RecordAdapterEvent(eventType string) {
	AdapterEvents.WithLabelValues(eventType).Inc()
}

// RecordStreamOpened records a logical stream opening
func RecordStreamOpened(kind string) {
	AdapterStreamsOpened.WithLabelValues(kind).Inc()
}

// RecordStreamCompleted records a logical stream completing
func RecordStreamCompleted(kind string) {
	AdapterStreamsCompleted.WithLabelValues(kind).Inc()
}

// RecordDelta records one emitted text delta
func RecordDelta(kind string) {
	AdapterDeltas.WithLabelValues(kind).Inc()
}

// RecordPassthrough records one passthrough message
func RecordPassthrough() {
	AdapterPassthroughs.Inc()
}

// RecordSessionError records one terminal session error
func RecordSessionError() {
	AdapterSessionErrors.Inc()
}
