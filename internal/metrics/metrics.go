// Package metrics exposes chat counters to Prometheus. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketchat"

// gateStates mirrors the schema gate states so the gauge can be one-hot.
var gateStates = []string{"unknown", "checking", "ready", "migration_required", "migrating"}

type Metrics struct {
	registry         *prometheus.Registry
	messagesAppended *prometheus.CounterVec
	replays          prometheus.Counter
	notModified      *prometheus.CounterVec
	gateState        *prometheus.GaugeVec
	healAttempts     *prometheus.CounterVec
	unreadDrift      prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages stored, by kind.",
		}, []string{"kind"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_replays_total",
			Help:      "Appends resolved to an existing message by client token.",
		}),
		notModified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "not_modified_total",
			Help:      "Conditional fetches answered without a body, by endpoint.",
		}, []string{"endpoint"}),
		gateState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schema_gate_state",
			Help:      "Current schema gate state (1 for the active state).",
		}, []string{"state"}),
		healAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_heal_attempts_total",
			Help:      "Schema heal attempts, by result.",
		}, []string{"result"}),
		unreadDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unread_drift_corrections_total",
			Help:      "Participant unread counters corrected by the audit.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesAppended,
		m.replays,
		m.notModified,
		m.gateState,
		m.healAttempts,
		m.unreadDrift,
	)
	m.GateState("unknown")
	return m
}

func (m *Metrics) MessageAppended(kind string, replayed bool) {
	if m == nil {
		return
	}
	if replayed {
		m.replays.Inc()
		return
	}
	m.messagesAppended.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotModified(endpoint string) {
	if m == nil {
		return
	}
	m.notModified.WithLabelValues(endpoint).Inc()
}

// GateState marks state as the active gate state.
func (m *Metrics) GateState(state string) {
	if m == nil {
		return
	}
	for _, s := range gateStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.gateState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) HealAttempt(result string) {
	if m == nil {
		return
	}
	m.healAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) UnreadDrift(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unreadDrift.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
