package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	eventTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_transitions_total",
			Help: "Event status transitions by target status and actor kind.",
		},
		[]string{"status", "actor"},
	)

	chatMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Chat messages persisted and broadcast.",
	})

	chatSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_subscribers",
		Help: "Currently registered live chat subscribers.",
	})

	sweepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_sweep_failures_total",
			Help: "Per-item failures during scheduler sweeps.",
		},
		[]string{"sweep"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the readiness probe last succeeded, 0 otherwise.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		eventTransitionsTotal, chatMessagesTotal, chatSubscribers,
		sweepFailuresTotal, readyGauge,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EventTransition records one event status transition. actor is "user" or
// "system".
func EventTransition(status, actor string) {
	eventTransitionsTotal.WithLabelValues(status, actor).Inc()
}

// ChatMessage records one persisted chat message.
func ChatMessage() { chatMessagesTotal.Inc() }

// ChatSubscriberDelta adjusts the live subscriber gauge.
func ChatSubscriberDelta(d int) { chatSubscribers.Add(float64(d)) }

// SweepFailure records one isolated per-item scheduler failure.
func SweepFailure(sweep string) { sweepFailuresTotal.WithLabelValues(sweep).Inc() }

// SetReady publishes the readiness state as a gauge.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument wraps an HTTP handler with in-flight, count and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the instrumented wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
