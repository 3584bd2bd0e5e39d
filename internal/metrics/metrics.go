// Package metrics exposes Prometheus instrumentation for the dashboard.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	remoteCalls       *prometheus.CounterVec
	remoteDuration    *prometheus.HistogramVec
	fallbacks         *prometheus.CounterVec
	assessments       *prometheus.CounterVec
	telemetry         *prometheus.CounterVec
	modelAccuracy     prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_api_requests_total",
			Help: "Requests to the remote prediction API by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prediction_api_request_duration_seconds",
			Help:    "Histogram of remote prediction API latencies by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fallbacks_total",
			Help: "Times a built-in fallback replaced a remote response, by endpoint.",
		}, []string{"endpoint"}),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Risk assessments served by source and risk level.",
		}, []string{"source", "risk_level"}),
		telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_messages_total",
			Help: "Station telemetry messages by outcome.",
		}, []string{"outcome"}),
		modelAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "model_accuracy_percent",
			Help: "Model accuracy currently shown on the dashboard.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.remoteCalls,
		m.remoteDuration,
		m.fallbacks,
		m.assessments,
		m.telemetry,
		m.modelAccuracy,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RemoteCall records one request to the prediction API. outcome is "ok" or
// the failure kind.
func (m *Metrics) RemoteCall(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(endpoint, outcome).Inc()
	m.remoteDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) Fallback(endpoint string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) Assessment(source, level string) {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues(source, level).Inc()
}

func (m *Metrics) Telemetry(outcome string) {
	if m == nil {
		return
	}
	m.telemetry.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetModelAccuracy(v float64) {
	if m == nil {
		return
	}
	m.modelAccuracy.Set(v)
}
