// Package metrics provides the daemon's Prometheus metric collectors,
// registered once at startup and scraped from the HTTP surface's /metrics
// route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the daemon exposes.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// EventsEmittedGauge/EventsDroppedGauge/SubscribersGauge mirror the
	// event bus's own cumulative DispatcherStats counters (§4.2); they are
	// Gauges rather than Counters because the bus, not Prometheus, owns the
	// running total — ObserveEventBus just snapshots it.
	EventsEmittedGauge prometheus.Gauge
	EventsDroppedGauge prometheus.Gauge
	SubscribersGauge   prometheus.Gauge

	ReconcileActionsTotal *prometheus.CounterVec

	ProcessesGauge *prometheus.GaugeVec
}

// New creates a Metrics instance and registers every collector against
// registerer. Passing nil uses prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nanocld_http_requests_total",
				Help: "Total number of HTTP requests served by the daemon.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nanocld_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nanocld_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed.",
			},
		),
		EventsEmittedGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nanocld_events_emitted_total",
				Help: "Total number of events successfully delivered to a subscriber.",
			},
		),
		EventsDroppedGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nanocld_events_dropped_total",
				Help: "Total number of events dropped for a slow subscriber.",
			},
		),
		SubscribersGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nanocld_event_subscribers",
				Help: "Current number of live event bus subscribers.",
			},
		),
		ReconcileActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nanocld_reconcile_actions_total",
				Help: "Total number of reconciler dispatch actions, by actor kind and outcome.",
			},
			[]string{"kind", "action", "outcome"},
		),
		ProcessesGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nanocld_processes",
				Help: "Current number of engine processes, by kind.",
			},
			[]string{"kind"},
		),
	}

	registerer.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.EventsEmittedGauge,
		m.EventsDroppedGauge,
		m.SubscribersGauge,
		m.ReconcileActionsTotal,
		m.ProcessesGauge,
	)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordReconcileAction records one reconciler dispatch outcome.
func (m *Metrics) RecordReconcileAction(kind, action, outcome string) {
	m.ReconcileActionsTotal.WithLabelValues(kind, action, outcome).Inc()
}

// EventBusStats mirrors eventbus.DispatcherStats; callers convert
// explicitly at the call site rather than this package importing
// internal/eventbus for one struct's sake.
type EventBusStats struct {
	SubscriberCount int
	EventsEmitted   int64
	EventsDropped   int64
}

// ObserveEventBus snapshots the bus's cumulative counters into gauges. The
// caller (cmd/nanocld) polls this periodically rather than the bus pushing
// on every emit, keeping the hot emit path free of metrics-package calls.
func (m *Metrics) ObserveEventBus(stats EventBusStats) {
	m.SubscribersGauge.Set(float64(stats.SubscriberCount))
	m.EventsEmittedGauge.Set(float64(stats.EventsEmitted))
	m.EventsDroppedGauge.Set(float64(stats.EventsDropped))
}

// SetProcessCount reports the live engine process count for one object
// kind (cargo/job/vm), polled the same way ObserveEventBus is.
func (m *Metrics) SetProcessCount(kind string, n int64) {
	m.ProcessesGauge.WithLabelValues(kind).Set(float64(n))
}
