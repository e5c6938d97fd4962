// Package observability exposes prometheus collectors for the alert condition
// cache, notification delivery and the HTTP API.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetwatch/fleetwatch/internal/alertcache"
	"github.com/fleetwatch/fleetwatch/internal/datastore/entities"
)

const namespace = "fleetwatch"

// Metrics holds every collector of the process. Collectors are registered on
// the registry passed to New, so tests can use an isolated registry.
type Metrics struct {
	registry *prometheus.Registry

	// Cache metrics
	ChecksTotal      *prometheus.CounterVec
	CheckDuration    *prometheus.HistogramVec
	MatchesTotal     *prometheus.CounterVec
	EvalErrorsTotal  *prometheus.CounterVec
	SignalsTotal     *prometheus.CounterVec
	LoadedTotal      *prometheus.CounterVec
	LoadErrorsTotal  *prometheus.CounterVec
	ReloadDuration   prometheus.Histogram
	ReloadFailures   prometheus.Counter
	CacheElements    *prometheus.GaugeVec
	NotificationsOut *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ChecksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alertcache_checks_total",
				Help:      "Total number of telemetry checks against the condition cache",
			},
			[]string{"cache"},
		),
		CheckDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "alertcache_check_duration_seconds",
				Help:      "Time spent evaluating one telemetry batch",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"cache"},
		),
		MatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alertcache_matches_total",
				Help:      "Total number of matched condition elements",
			},
			[]string{"cache"},
		),
		EvalErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alertcache_evaluation_errors_total",
				Help:      "Total number of element evaluation or dispatch errors",
			},
			[]string{"cache"},
		),
		SignalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alertcache_signals_total",
				Help:      "Total number of activate and deactivate signals",
			},
			[]string{"cache", "kind"},
		),
		LoadedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alertcache_loaded_elements_total",
				Help:      "Total number of elements inserted by cache loads",
			},
			[]string{"category"},
		),
		LoadErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alertcache_load_errors_total",
				Help:      "Total number of conditions skipped during cache loads",
			},
			[]string{"category"},
		),
		ReloadDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "alertcache_agent_reload_duration_seconds",
				Help:      "Time taken to reload the conditions of one agent",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
			},
		),
		ReloadFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alertcache_agent_reload_failures_total",
				Help:      "Total number of agent reloads that stopped on a query error",
			},
		),
		CacheElements: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "alertcache_elements",
				Help:      "Current number of entries per cache",
			},
			[]string{"cache"},
		),
		NotificationsOut: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total number of notifications handed to sinks",
			},
			[]string{"sink", "status"}, // status: delivered, dropped, failed
		),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint", "status"},
		),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCheck implements alertcache.Observer.
func (m *Metrics) ObserveCheck(cache string, elapsed time.Duration, stats alertcache.Stats) {
	m.ChecksTotal.WithLabelValues(cache).Inc()
	m.CheckDuration.WithLabelValues(cache).Observe(elapsed.Seconds())
	if stats.Matched > 0 {
		m.MatchesTotal.WithLabelValues(cache).Add(float64(stats.Matched))
	}
	if stats.Errors > 0 {
		m.EvalErrorsTotal.WithLabelValues(cache).Add(float64(stats.Errors))
	}
}

// ObserveSignal implements alertcache.Observer.
func (m *Metrics) ObserveSignal(cache, kind string) {
	m.SignalsTotal.WithLabelValues(cache, kind).Inc()
}

// ObserveLoad implements alertcache.Observer.
func (m *Metrics) ObserveLoad(category entities.ConditionCategory, stats alertcache.Stats) {
	m.LoadedTotal.WithLabelValues(string(category)).Add(float64(stats.Created))
	m.LoadErrorsTotal.WithLabelValues(string(category)).Add(float64(stats.Errors))
}

// ObserveReload implements alertcache.Observer.
func (m *Metrics) ObserveReload(elapsed time.Duration, err error) {
	m.ReloadDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.ReloadFailures.Inc()
	}
}

// ObserveCounts implements alertcache.Observer.
func (m *Metrics) ObserveCounts(counts map[string]int) {
	for name, n := range counts {
		m.CacheElements.WithLabelValues(name).Set(float64(n))
	}
}

// ObserveNotification counts one notification handed to a sink.
func (m *Metrics) ObserveNotification(sink, status string) {
	m.NotificationsOut.WithLabelValues(sink, status).Inc()
}

// ObserveHTTP records one served request. endpoint should be the route pattern.
func (m *Metrics) ObserveHTTP(method, endpoint string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint, code).Observe(elapsed.Seconds())
}

var _ alertcache.Observer = (*Metrics)(nil)
