// Package metrics exposes Prometheus instrumentation for estimate operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "estimator"

// Metrics holds the collectors registered for the service.
type Metrics struct {
	registry *prometheus.Registry

	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	itemsRepriced   prometheus.Counter
	marginOverrides *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates a registry with process and Go runtime collectors plus the
// estimator collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Estimate service operations by name and result code.",
		}, []string{"operation", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Estimate service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		itemsRepriced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_items_repriced_total",
			Help:      "Line items whose rates were re-resolved by a bulk recalculation.",
		}),
		marginOverrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "margin_overrides_total",
			Help:      "Margin override applies and removes.",
		}, []string{"action"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.operations, m.duration, m.itemsRepriced, m.marginOverrides, m.httpRequests)
	return m
}

// ObserveOperation records one service operation. code is empty on success.
func (m *Metrics) ObserveOperation(operation, code string, d time.Duration) {
	if code == "" {
		code = "OK"
	}
	m.operations.WithLabelValues(operation, code).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// AddItemsRepriced counts line items re-resolved by a recalculation.
func (m *Metrics) AddItemsRepriced(n int) {
	m.itemsRepriced.Add(float64(n))
}

// ObserveMarginOverride counts a margin override apply or remove.
func (m *Metrics) ObserveMarginOverride(action string) {
	m.marginOverrides.WithLabelValues(action).Inc()
}

// ObserveHTTPRequest counts one HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route, status string) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
}

// Registry returns the underlying registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
