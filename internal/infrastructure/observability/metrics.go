// Package observability wires Prometheus metrics and OpenTelemetry tracing
// for the badge service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics holds every collector the service exports.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	computeTotal       *prometheus.CounterVec
	computeDuration    prometheus.Histogram
	grantedTotal       *prometheus.CounterVec
	metricQueryLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	rateLimited *prometheus.CounterVec
	publishErrs prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		computeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_compute_total",
			Help: "Badge computations by outcome.",
		}, []string{"outcome"}),

		computeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "badges_compute_duration_seconds",
			Help:    "End to end latency of one badge computation.",
			Buckets: prometheus.DefBuckets,
		}),

		grantedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_granted_total",
			Help: "Badges granted, by badge slug.",
		}, []string{"slug"}),

		metricQueryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "badges_metrics_query_duration_seconds",
			Help:    "Latency of each activity read used to build a metrics snapshot.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"metric"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "badges_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by limiter backend.",
		}, []string{"backend"}),

		publishErrs: factory.NewCounter(prometheus.CounterOpts{
			Name: "badges_event_publish_errors_total",
			Help: "Badge events that could not be published.",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCompute records the outcome and latency of one computation.
func (m *Metrics) ObserveCompute(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.computeTotal.WithLabelValues(outcome).Inc()
	m.computeDuration.Observe(d.Seconds())
}

// IncGranted counts one newly granted badge.
func (m *Metrics) IncGranted(slug string) {
	if m == nil {
		return
	}
	m.grantedTotal.WithLabelValues(slug).Inc()
}

// ObserveMetricQuery records the latency of a single activity read.
func (m *Metrics) ObserveMetricQuery(metric string, d time.Duration) {
	if m == nil {
		return
	}
	m.metricQueryLatency.WithLabelValues(metric).Observe(d.Seconds())
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncRateLimited counts a request rejected by the given limiter backend.
func (m *Metrics) IncRateLimited(backend string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(backend).Inc()
}

// IncPublishError counts an event that failed to publish.
func (m *Metrics) IncPublishError() {
	if m == nil {
		return
	}
	m.publishErrs.Inc()
}
