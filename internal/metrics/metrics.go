// Package metrics exposes Prometheus instrumentation for both sides of the
// protocol. One Metrics value implements the socket Recorder, the
// dispatcher FailureRecorder and an event Observer.
package metrics

import (
	discoverymodels "lanbeacon/internal/discovery_manager/models"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "beacon"

type Metrics struct {
	packetsReceived   prometheus.Counter
	packetsDropped    *prometheus.CounterVec
	broadcastsSent    prometheus.Counter
	broadcastFailures prometheus.Counter
	events            *prometheus.CounterVec
	observerFailures  prometheus.Counter
	discoverables     prometheus.Gauge
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Datagrams read from the multicast group.",
		}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Datagrams discarded before reaching the registry.",
		}, []string{"reason"}),
		broadcastsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_sent_total",
			Help:      "Heartbeat packets sent by local publishers.",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failures_total",
			Help:      "Send errors that terminated a broadcaster.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Discovery events by kind.",
		}, []string{"kind"}),
		observerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observer_failures_total",
			Help:      "Observer deliveries that returned an error or panicked.",
		}),
		discoverables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discoverables",
			Help:      "Sessions currently tracked by the registry.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.packetsReceived,
			m.packetsDropped,
			m.broadcastsSent,
			m.broadcastFailures,
			m.events,
			m.observerFailures,
			m.discoverables,
		)
	}

	return m
}

func (m *Metrics) PacketReceived() {
	m.packetsReceived.Inc()
}

func (m *Metrics) PacketDropped(reason string) {
	m.packetsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) BroadcastSent() {
	m.broadcastsSent.Inc()
}

func (m *Metrics) BroadcastFailed() {
	m.broadcastFailures.Inc()
}

func (m *Metrics) ObserverFailed() {
	m.observerFailures.Inc()
}

// OnEvent counts the event and keeps the discoverables gauge in step with
// FOUND and LOST.
func (m *Metrics) OnEvent(e discoverymodels.Event) error {
	m.events.WithLabelValues(e.Kind.String()).Inc()

	switch e.Kind {
	case discoverymodels.EventFound:
		m.discoverables.Inc()
	case discoverymodels.EventLost:
		m.discoverables.Dec()
	}
	return nil
}
