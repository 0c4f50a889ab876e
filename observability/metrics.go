package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and error code.",
			}, []string{"route", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "otc",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limiting.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
	if status >= 500 {
		m.errors.WithLabelValues(route, fmt.Sprintf("http_%d", status)).Inc()
	}
}

// RecordError counts a typed protocol error returned by a route.
func (m *moduleMetrics) RecordError(route, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.errors.WithLabelValues(route, code).Inc()
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}
