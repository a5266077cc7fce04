// Package metrics provides Prometheus metrics for the response engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "learnbot"

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// ResponsesTotal counts replies by the adapter that produced the winner.
	// Labels: adapter, mode (direct, voting)
	ResponsesTotal *prometheus.CounterVec

	// AdapterResults counts adapter outcomes.
	// Labels: adapter, result (candidate, declined, error)
	AdapterResults *prometheus.CounterVec

	// LearnTotal counts merge-upserts issued by learning.
	// Labels: result (success, error, skipped)
	LearnTotal *prometheus.CounterVec

	// RequestDuration tracks HTTP request latency.
	// Labels: method, route, status
	RequestDuration *prometheus.HistogramVec
}

// New registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bot",
				Name:      "responses_total",
				Help:      "Total number of responses by winning adapter and selection mode",
			},
			[]string{"adapter", "mode"},
		),
		AdapterResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bot",
				Name:      "adapter_results_total",
				Help:      "Total number of logic adapter invocations by outcome",
			},
			[]string{"adapter", "result"},
		),
		LearnTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "learn_total",
				Help:      "Total number of learning writes by outcome",
			},
			[]string{"result"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
	m.registry.MustRegister(
		m.ResponsesTotal,
		m.AdapterResults,
		m.LearnTotal,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordResponse(adapter, mode string) {
	if m == nil {
		return
	}
	m.ResponsesTotal.WithLabelValues(adapter, mode).Inc()
}

func (m *Metrics) RecordAdapter(adapter, result string) {
	if m == nil {
		return
	}
	m.AdapterResults.WithLabelValues(adapter, result).Inc()
}

func (m *Metrics) RecordLearn(result string) {
	if m == nil {
		return
	}
	m.LearnTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
