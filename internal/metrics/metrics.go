// Package metrics exposes relay counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vovakirdan/wirechat-relay/internal/core"
)

const namespace = "wirechat_relay"

var _ core.Metrics = (*Recorder)(nil)

// Recorder implements core.Metrics on a private Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	sessionsActive    prometheus.Gauge
	handshakeRejected prometheus.Counter
	broadcasts        prometheus.Counter
	deliveries        prometheus.Counter
	evictions         prometheus.Counter
	persistFailures   *prometheus.CounterVec
}

// New registers the relay collectors; rooms reports the live room count.
func New(rooms *core.Registry) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently joined to a room.",
		}),
		handshakeRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_rejected_total",
			Help:      "Connections rejected for a missing username or room.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Fan-outs to non-empty rooms.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames written to members during fan-out.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Members removed after a failed or closed delivery.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed history or user store calls by operation.",
		}, []string{"op"}),
	}

	r.registry.MustRegister(
		r.sessionsActive,
		r.handshakeRejected,
		r.broadcasts,
		r.deliveries,
		r.evictions,
		r.persistFailures,
		collectors.NewGoCollector(),
	)

	if rooms != nil {
		r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}, func() float64 { return float64(rooms.RoomCount()) }))
	}

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) SessionOpened()     { r.sessionsActive.Inc() }
func (r *Recorder) SessionClosed()     { r.sessionsActive.Dec() }
func (r *Recorder) HandshakeRejected() { r.handshakeRejected.Inc() }

func (r *Recorder) Broadcast(report core.DeliveryReport) {
	r.broadcasts.Inc()
	r.deliveries.Add(float64(report.Delivered))
	r.evictions.Add(float64(len(report.Evicted)))
}

func (r *Recorder) PersistFailed(op string) {
	r.persistFailures.WithLabelValues(op).Inc()
}
