// Package telemetry exposes Prometheus counters/gauges for scheduler,
// cache, and event bus activity, plus an HTTP handler to serve them.
//
// Grounded on iLLeniumStudios-cronjob-guardian's internal/metrics package
// (package-level Vec metrics registered at construction time, with small
// Record*/Update* helper functions instead of callers touching the vecs
// directly) and r3e-network-service_layer / jayjanssen-myq-tools, which
// wire prometheus/client_golang the same way. This is the ambient
// observability carried forward regardless of the spec's Non-goals around
// the alerting/notification product itself — metrics are not alerts.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"watcherd/internal/eventbus"
)

// Metrics bundles every counter/gauge this process emits, registered
// against its own registry rather than the global default so multiple
// Orchestrators (e.g. in tests) never collide on metric registration.
type Metrics struct {
	registry *prometheus.Registry

	ChecksTotal     *prometheus.CounterVec
	CheckDuration   *prometheus.HistogramVec
	TimeoutsTotal   prometheus.Counter
	MonitorsUp      prometheus.Gauge
	MonitorsDown    prometheus.Gauge
	MonitorsPending prometheus.Gauge
	SchedulerJobs   prometheus.Gauge
	CacheHits       *prometheus.GaugeVec
	CacheMisses     *prometheus.GaugeVec
	BusEventsTotal  *prometheus.CounterVec
}

// New constructs and registers the full metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcherd_checks_total",
			Help: "Total number of monitor checks completed, by outcome.",
		}, []string{"status"}),
		CheckDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watcherd_check_duration_seconds",
			Help:    "Observed duration of monitor checks, by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		TimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcherd_check_timeouts_total",
			Help: "Total number of monitor checks aborted by the scheduler's timeout deadline.",
		}),
		MonitorsUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcherd_monitors_up",
			Help: "Number of monitors currently in the up state.",
		}),
		MonitorsDown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcherd_monitors_down",
			Help: "Number of monitors currently in the down state.",
		}),
		MonitorsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcherd_monitors_pending",
			Help: "Number of monitors that have never completed a check.",
		}),
		SchedulerJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcherd_scheduler_jobs",
			Help: "Number of monitor jobs currently held by the scheduler.",
		}),
		CacheHits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "watcherd_cache_hits",
			Help: "Cumulative cache hits observed at last poll, by cache name.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "watcherd_cache_misses",
			Help: "Cumulative cache misses observed at last poll, by cache name.",
		}, []string{"cache"}),
		BusEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcherd_bus_events_total",
			Help: "Total events published, by bus name and event name.",
		}, []string{"bus", "event"}),
	}

	reg.MustRegister(
		m.ChecksTotal, m.CheckDuration, m.TimeoutsTotal, m.MonitorsUp, m.MonitorsDown, m.MonitorsPending,
		m.SchedulerJobs, m.CacheHits, m.CacheMisses, m.BusEventsTotal,
	)
	return m
}

// Handler returns the HTTP handler serving this registry's metrics, ready
// to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCheck records one completed check's outcome and duration.
func (m *Metrics) RecordCheck(status string, seconds float64) {
	m.ChecksTotal.WithLabelValues(status).Inc()
	m.CheckDuration.WithLabelValues(status).Observe(seconds)
}

// RecordTimeout records a check aborted by the scheduler's timeout deadline.
func (m *Metrics) RecordTimeout() {
	m.TimeoutsTotal.Inc()
}

// SetCacheStats publishes a polled cache.Stats snapshot for the named cache.
func (m *Metrics) SetCacheStats(cacheName string, hits, misses int64) {
	m.CacheHits.WithLabelValues(cacheName).Set(float64(hits))
	m.CacheMisses.WithLabelValues(cacheName).Set(float64(misses))
}

// RecordBusEvent records one event published on a named bus.
func (m *Metrics) RecordBusEvent(busName, eventName string) {
	m.BusEventsTotal.WithLabelValues(busName, eventName).Inc()
}

// SetMonitorCounts updates the monitor-status gauges in one call.
func (m *Metrics) SetMonitorCounts(up, down, pending int) {
	m.MonitorsUp.Set(float64(up))
	m.MonitorsDown.Set(float64(down))
	m.MonitorsPending.Set(float64(pending))
}

// SetSchedulerJobs updates the scheduler job-count gauge.
func (m *Metrics) SetSchedulerJobs(n int) {
	m.SchedulerJobs.Set(float64(n))
}

// BusMiddleware returns an eventbus.Middleware that records every
// emission's bus/event name, meant to be registered on every bus via
// Bus.Use so telemetry never depends on each individual publish call site.
func (m *Metrics) BusMiddleware() eventbus.Middleware {
	return func(env eventbus.Envelope, next func(eventbus.Envelope)) error {
		m.RecordBusEvent(env.Meta.BusName, env.Meta.EventName)
		next(env)
		return nil
	}
}

