package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one console instance.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Metadata API metrics
	MetadataCallsTotal   *prometheus.CounterVec
	MetadataCallDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on registry. A nil
// registry gets a fresh one with the Go and process collectors.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolekeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rolekeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		MetadataCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rolekeeper_metadata_calls_total",
				Help: "Total number of calls to the metadata API",
			},
			[]string{"operation", "status"},
		),
		MetadataCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rolekeeper_metadata_call_duration_seconds",
				Help:    "Metadata API call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MetadataCallsTotal,
		m.MetadataCallDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCall records one metadata API call. A status of 0 means the call
// failed before a response arrived.
func (m *Metrics) ObserveCall(op string, status int, elapsed time.Duration, err error) {
	label := strconv.Itoa(status)
	if status == 0 && err != nil {
		label = "error"
	}
	m.MetadataCallsTotal.WithLabelValues(op, label).Inc()
	m.MetadataCallDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Instrument returns an HTTP middleware that counts requests and observes
// their duration, labelled by chi route pattern.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
