// Package metrics exposes Prometheus collectors for the gateway and its scatter/gather routes.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for scatter requests and gatherer calls.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeIgnored = "ignored"
	OutcomeCached  = "cached"
)

// Collector owns a registry and the collectors recorded by the gateway.
type Collector struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	scatterRequests *prometheus.CounterVec
	scatterDuration *prometheus.HistogramVec
	scatterFanout   *prometheus.HistogramVec

	gathererCalls    *prometheus.CounterVec
	gathererDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
// An empty namespace defaults to "composition".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "composition"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})
	c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})
	c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
	}, []string{"method", "path"})

	c.scatterRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scatter",
		Name:      "requests_total",
		Help:      "Scatter/gather requests by route template and outcome.",
	}, []string{"route", "outcome"})
	c.scatterDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scatter",
		Name:      "request_duration_seconds",
		Help:      "Time from first gatherer launch to aggregate completion.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"route"})
	c.scatterFanout = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scatter",
		Name:      "aggregated_items",
		Help:      "Number of items in each aggregate result.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"route"})

	c.gathererCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gatherer",
		Name:      "calls_total",
		Help:      "Gatherer invocations by key and outcome.",
	}, []string{"key", "outcome"})
	c.gathererDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gatherer",
		Name:      "call_duration_seconds",
		Help:      "Duration of gatherer invocations.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"key"})

	c.registry.MustRegister(
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		c.scatterRequests,
		c.scatterDuration,
		c.scatterFanout,
		c.gathererCalls,
		c.gathererDuration,
	)
	return c
}

// WithRuntimeCollectors adds process and Go runtime collectors.
func (c *Collector) WithRuntimeCollectors() *Collector {
	c.registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight marks an HTTP request as started.
func (c *Collector) IncrementInFlight() {
	c.httpInFlight.Inc()
}

// DecrementInFlight marks an HTTP request as finished.
func (c *Collector) DecrementInFlight() {
	c.httpInFlight.Dec()
}

// RecordHTTPRequest records a completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	method = strings.ToUpper(method)
	c.httpRequests.WithLabelValues(method, path, status).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordScatter records one scatter/gather request.
func (c *Collector) RecordScatter(route, outcome string, items int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	c.scatterRequests.WithLabelValues(route, outcome).Inc()
	c.scatterDuration.WithLabelValues(route).Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		c.scatterFanout.WithLabelValues(route).Observe(float64(items))
	}
}

// RecordGatherer records one gatherer invocation.
func (c *Collector) RecordGatherer(key, outcome string, duration time.Duration) {
	if key == "" {
		key = "unknown"
	}
	if duration <= 0 {
		duration = time.Microsecond
	}
	c.gathererCalls.WithLabelValues(key, outcome).Inc()
	c.gathererDuration.WithLabelValues(key).Observe(duration.Seconds())
}
