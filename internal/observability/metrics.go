// Package observability holds the Prometheus collectors exposed by devlens,
// grounded on the service_layer pack's pkg/metrics package: a package-level
// custom Registry plus a handful of Namespace/Subsystem-scoped vectors.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every devlens collector, kept separate from the default
// global registry so /metrics only exposes what this service defines plus
// the standard process/Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "devlens",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests handled by the API.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "route", "status"},
	)

	SSEStartupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "devlens",
			Subsystem: "sse",
			Name:      "stream_startup_seconds",
			Help:      "Time from SSE connection accept to first event flushed.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"stream"},
	)

	WorkerStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "devlens",
			Subsystem: "worker",
			Name:      "stage_duration_seconds",
			Help:      "Duration of a single pipeline stage run (parse/embed/analyze).",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"stage", "status"},
	)

	LLMProviderAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlens",
			Subsystem: "llm",
			Name:      "provider_attempts_total",
			Help:      "Summary attempt count per provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	LLMFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlens",
			Subsystem: "llm",
			Name:      "fallbacks_total",
			Help:      "Number of times the primary summary provider was abandoned for a fallback.",
		},
		[]string{"from_provider", "to_provider"},
	)

	JobsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devlens",
			Subsystem: "worker",
			Name:      "jobs_claimed_total",
			Help:      "Number of jobs claimed out of a given stage.",
		},
		[]string{"from_status"},
	)
)

func init() {
	Registry.MustRegister(
		HTTPRequestDuration,
		SSEStartupDuration,
		WorkerStageDuration,
		LLMProviderAttempts,
		LLMFallbacks,
		JobsClaimedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler returns the /metrics HTTP handler for this registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one request's duration against method/route/status.
func ObserveHTTPRequest(method, route string, status int, start time.Time) {
	HTTPRequestDuration.WithLabelValues(method, route, http.StatusText(status)).Observe(time.Since(start).Seconds())
}

// ObserveStage records how long a worker stage run took and whether it
// advanced, retried, or failed the job.
func ObserveStage(stage, status string, start time.Time) {
	WorkerStageDuration.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
}
