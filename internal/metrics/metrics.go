// Package metrics exposes Prometheus collectors for the gate, the dispatcher
// and the handler pool. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal *prometheus.CounterVec

	// Gate metrics
	VerificationFailuresTotal *prometheus.CounterVec

	// Dispatch metrics
	DispatchTotal *prometheus.CounterVec

	// Handler metrics
	HandlerRunsTotal *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	HandlersInflight prometheus.Gauge
}

// NewMetrics creates and registers all collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_webhook_requests_total",
				Help: "Total number of webhook requests by response status",
			},
			[]string{"status"},
		),
		VerificationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_verification_failures_total",
				Help: "Total number of rejected signatures by reason",
			},
			[]string{"reason"},
		),
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_dispatch_total",
				Help: "Total number of dispatch attempts by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		HandlerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hookgate_handler_runs_total",
				Help: "Total number of handler executions by event and status",
			},
			[]string{"event", "status"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hookgate_handler_duration_seconds",
				Help:    "Handler execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		HandlersInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hookgate_handlers_inflight",
				Help: "Number of handlers currently executing",
			},
		),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.VerificationFailuresTotal,
		m.DispatchTotal,
		m.HandlerRunsTotal,
		m.HandlerDuration,
		m.HandlersInflight,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts a finished webhook request.
func (m *Metrics) RecordRequest(status int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordVerificationFailure counts a rejected signature.
func (m *Metrics) RecordVerificationFailure(reason string) {
	if m == nil {
		return
	}
	m.VerificationFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordDispatch counts a dispatch attempt.
func (m *Metrics) RecordDispatch(event, outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(event, outcome).Inc()
}

// HandlerStarted marks a handler as running.
func (m *Metrics) HandlerStarted() {
	if m == nil {
		return
	}
	m.HandlersInflight.Inc()
}

// HandlerFinished records a completed handler run.
func (m *Metrics) HandlerFinished(event, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandlersInflight.Dec()
	m.HandlerRunsTotal.WithLabelValues(event, status).Inc()
	m.HandlerDuration.WithLabelValues(event).Observe(d.Seconds())
}
