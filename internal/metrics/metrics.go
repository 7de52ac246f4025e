// Package metrics exposes Prometheus collectors for the reconciliation
// engine, backend calls and the API server. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for applied change events.
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeOrphan  = "orphan"
	OutcomeInvalid = "invalid"
)

// Metrics holds every collector on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	applyDuration prometheus.Histogram
	queueDepth    prometheus.Gauge
	notifyDropped prometheus.Counter
	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	mirrorDishes  prometheus.Gauge
	mirrorItems   prometheus.Gauge
	requests      *prometheus.CounterVec
	changeLogSize prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prep_change_events_total",
			Help: "Change events consumed by the reconciler.",
		}, []string{"table", "type", "outcome"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prep_reconcile_duration_seconds",
			Help:    "Time spent applying one change event.",
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prep_event_queue_depth",
			Help: "Change events waiting to be reconciled.",
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prep_notifications_dropped_total",
			Help: "Notifications dropped because no listener was ready.",
		}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prep_backend_calls_total",
			Help: "Backend calls by operation and result.",
		}, []string{"op", "result"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prep_backend_call_duration_seconds",
			Help:    "Backend call latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		mirrorDishes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prep_mirror_dishes",
			Help: "Dishes held in the local mirror.",
		}),
		mirrorItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prep_mirror_items",
			Help: "Items held in the local mirror.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prep_http_requests_total",
			Help: "API requests by route and status class.",
		}, []string{"route", "class"}),
		changeLogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prep_change_log_last_seq",
			Help: "Last sequence number in the server change log.",
		}),
	}
	m.registry.MustRegister(
		m.events, m.applyDuration, m.queueDepth, m.notifyDropped,
		m.remoteCalls, m.remoteLatency, m.mirrorDishes, m.mirrorItems,
		m.requests, m.changeLogSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordEvent counts one reconciled event.
func (m *Metrics) RecordEvent(table, typ, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(table, typ, outcome).Inc()
	m.applyDuration.Observe(took.Seconds())
}

// SetQueueDepth reports the number of queued events.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// RecordNotificationDropped counts a notification nobody received.
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}

// RecordRemoteCall counts one backend call.
func (m *Metrics) RecordRemoteCall(op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.remoteCalls.WithLabelValues(op, result).Inc()
	m.remoteLatency.WithLabelValues(op).Observe(took.Seconds())
}

// SetMirrorSize reports the mirror's dish and item counts.
func (m *Metrics) SetMirrorSize(dishes, items int) {
	if m == nil {
		return
	}
	m.mirrorDishes.Set(float64(dishes))
	m.mirrorItems.Set(float64(items))
}

// RecordRequest counts one API request by its status class.
func (m *Metrics) RecordRequest(route string, status int) {
	if m == nil {
		return
	}
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	m.requests.WithLabelValues(route, class).Inc()
}

// SetChangeLogSeq reports the newest change log sequence number.
func (m *Metrics) SetChangeLogSeq(seq int64) {
	if m == nil {
		return
	}
	m.changeLogSize.Set(float64(seq))
}
