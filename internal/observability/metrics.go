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

const namespace = "portal_gateway"

// Metrics collects gateway metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	logins           *prometheus.CounterVec
	handoffs         *prometheus.CounterVec
	proxyRequests    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewMetrics registers the gateway metrics on a fresh registry labelled with the portal
func NewMetrics(portal string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	labels := prometheus.Labels{"portal": portal}

	return &Metrics{
		registry: registry,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests served, by route pattern and status",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),

		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "logins_total",
			Help:        "Login attempts by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),

		handoffs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "handoffs_total",
			Help:        "Cross-origin handoff captures by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),

		proxyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "proxy_requests_total",
			Help:        "Proxied record API calls by method and outcome",
			ConstLabels: labels,
		}, []string{"method", "outcome"}),

		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "upstream_duration_seconds",
			Help:        "Record API call duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordLogin counts a login attempt
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// RecordHandoff counts a handoff capture
func (m *Metrics) RecordHandoff(outcome string) {
	if m == nil {
		return
	}
	m.handoffs.WithLabelValues(outcome).Inc()
}

// RecordProxy counts a proxied call
func (m *Metrics) RecordProxy(method, outcome string) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(method, outcome).Inc()
}

// ObserveUpstream records the duration of a record API call
func (m *Metrics) ObserveUpstream(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
