// Package metrics holds the Prometheus collectors for the inbox engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	opens          *prometheus.CounterVec
	openFailures   *prometheus.CounterVec
	unreadLookups  *prometheus.CounterVec
	unreadComputes prometheus.Counter
	invalidations  *prometheus.CounterVec
	wsClients      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "inbox",
			Name:      "open_total",
			Help:      "Conversation opens by the path that completed them.",
		}, []string{"path"}),
		openFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "inbox",
			Name:      "open_failures_total",
			Help:      "Conversation opens that failed, by path.",
		}, []string{"path"}),
		unreadLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "unread",
			Name:      "lookups_total",
			Help:      "Unread count lookups by outcome (hit, miss, degraded).",
		}, []string{"result"}),
		unreadComputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "unread",
			Name:      "computations_total",
			Help:      "Unread count queries issued against the store.",
		}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "unread",
			Name:      "invalidations_total",
			Help:      "Unread cache invalidations by trigger.",
		}, []string{"trigger"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulse",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}),
	}
	reg.MustRegister(m.opens, m.openFailures, m.unreadLookups, m.unreadComputes, m.invalidations, m.wsClients)
	return m
}

func (m *Metrics) Open(path string) {
	if m != nil {
		m.opens.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) OpenFailed(path string) {
	if m != nil {
		m.openFailures.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) UnreadLookup(result string) {
	if m != nil {
		m.unreadLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) UnreadComputed() {
	if m != nil {
		m.unreadComputes.Inc()
	}
}

func (m *Metrics) Invalidated(trigger string) {
	if m != nil {
		m.invalidations.WithLabelValues(trigger).Inc()
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.wsClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.wsClients.Dec()
	}
}
