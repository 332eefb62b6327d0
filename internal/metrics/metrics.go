package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the notification counters and the registry they are
// exported from. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scheduled  *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	delivered  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	cancelled  *prometheus.CounterVec
	restored   prometheus.Counter
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parallel",
		Subsystem: "notifications",
		Name:      name,
		Help:      help,
	}, labels)
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry:   prometheus.NewRegistry(),
		scheduled:  counterVec("scheduled_total", "Notifications scheduled, by category and repeat interval.", "category", "repeat"),
		suppressed: counterVec("suppressed_total", "Notifications not scheduled or shown, by reason.", "category", "reason"),
		delivered:  counterVec("delivered_total", "Delivery attempts through the platform sink.", "category", "success"),
		dropped:    counterVec("dropped_total", "Missed or stale schedule windows that were dropped instead of fired.", "category"),
		cancelled:  counterVec("cancelled_total", "Schedule records cancelled or superseded.", "category"),
		restored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parallel",
			Subsystem: "notifications",
			Name:      "restored_total",
			Help:      "Schedule records re-issued to the sink at start-up.",
		}),
	}
	m.registry.MustRegister(
		m.scheduled,
		m.suppressed,
		m.delivered,
		m.dropped,
		m.cancelled,
		m.restored,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordScheduled counts a persisted schedule.
func (m *Metrics) RecordScheduled(category, repeat string) {
	if m == nil {
		return
	}
	if repeat == "" {
		repeat = "once"
	}
	m.scheduled.WithLabelValues(category, repeat).Inc()
}

// RecordSuppressed counts a notification held back, e.g. by quiet hours.
func (m *Metrics) RecordSuppressed(category, reason string) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(category, reason).Inc()
}

// RecordDelivery counts a sink delivery attempt.
func (m *Metrics) RecordDelivery(category string, ok bool) {
	if m == nil {
		return
	}
	success := "false"
	if ok {
		success = "true"
	}
	m.delivered.WithLabelValues(category, success).Inc()
}

// RecordDropped counts a missed window.
func (m *Metrics) RecordDropped(category string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(category).Inc()
}

// RecordCancelled counts removed schedule records.
func (m *Metrics) RecordCancelled(category string) {
	if m == nil {
		return
	}
	m.cancelled.WithLabelValues(category).Inc()
}

// RecordRestored counts re-issued schedules.
func (m *Metrics) RecordRestored(n int) {
	if m == nil {
		return
	}
	m.restored.Add(float64(n))
}
