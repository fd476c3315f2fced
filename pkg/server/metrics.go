package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments the server records.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	searchRequests prometheus.Counter
	searchErrors   prometheus.Counter
	searchDuration prometheus.Histogram

	agentRuns     *prometheus.CounterVec
	agentDuration prometheus.Histogram
}

// NewMetrics creates and registers all instruments on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholium_http_requests_total",
			Help: "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scholium_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		searchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholium_search_requests_total",
			Help: "Total hybrid search invocations.",
		}),
		searchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholium_search_errors_total",
			Help: "Total failed hybrid search invocations.",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scholium_search_duration_seconds",
			Help:    "Hybrid search duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholium_agent_runs_total",
			Help: "Total agent loop runs by outcome.",
		}, []string{"status"}),
		agentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scholium_agent_run_duration_seconds",
			Help:    "Agent loop duration in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.searchRequests,
		m.searchErrors,
		m.searchDuration,
		m.agentRuns,
		m.agentDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSearch records one hybrid search invocation.
func (m *Metrics) RecordSearch(duration time.Duration, err error) {
	m.searchRequests.Inc()
	m.searchDuration.Observe(duration.Seconds())
	if err != nil {
		m.searchErrors.Inc()
	}
}

// RecordAgentRun records one agent loop run.
func (m *Metrics) RecordAgentRun(duration time.Duration, status string) {
	m.agentRuns.WithLabelValues(status).Inc()
	m.agentDuration.Observe(duration.Seconds())
}
