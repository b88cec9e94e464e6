// Package metrics exposes Prometheus counters for the message pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "charbot"

// Metrics groups the pipeline counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	inbound     *prometheus.CounterVec
	replies     prometheus.Counter
	corrections *prometheus.CounterVec
	mistakes    *prometheus.CounterVec
	lookups     *prometheus.CounterVec
}

// New creates and registers all counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by processing outcome.",
		}, []string{"outcome"}),
		replies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Replies emitted by the detection pipeline.",
		}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Delayed corrections by result (sent, suppressed, failed).",
		}, []string{"result"}),
		mistakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mistakes_total",
			Help:      "Deliberate response mistakes by kind.",
		}, []string{"kind"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_lookups_total",
			Help:      "Name resolutions by source and result.",
		}, []string{"source", "result"}),
	}
	reg.MustRegister(m.inbound, m.replies, m.corrections, m.mistakes, m.lookups)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Inbound(outcome string) {
	if m != nil {
		m.inbound.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ReplySent() {
	if m != nil {
		m.replies.Inc()
	}
}

func (m *Metrics) Correction(result string) {
	if m != nil {
		m.corrections.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Mistake(kind string) {
	if m != nil {
		m.mistakes.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Lookup(source, result string) {
	if m != nil {
		m.lookups.WithLabelValues(source, result).Inc()
	}
}
