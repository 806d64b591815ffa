// Package metrics exports a multiplexer's observations as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ib-77/fastmux/pkg/fastmux"
	"github.com/ib-77/fastmux/pkg/fastmux/mux"
	"github.com/ib-77/fastmux/pkg/fastmux/sink"
)

// Collector holds the metrics of one or more multiplexers. Each multiplexer
// is told apart by the "mux" label given to Bind.
type Collector struct {
	Dispatches *prometheus.CounterVec
	Waiting    *prometheus.CounterVec
	Laggards   *prometheus.CounterVec
	Peers      *prometheus.GaugeVec
	PeerEvents *prometheus.CounterVec
	SettleTime *prometheus.HistogramVec
}

// NewCollector registers the metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastmux_dispatches_total",
				Help: "Chunks fanned out, by how they resolved",
			},
			[]string{"mux", "state"},
		),
		Waiting: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastmux_waiting_total",
				Help: "Chunks for which every receiving peer asked to wait",
			},
			[]string{"mux"},
		),
		Laggards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastmux_laggards_total",
				Help: "Peers flagged for not keeping up",
			},
			[]string{"mux"},
		),
		Peers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fastmux_peers",
				Help: "Currently registered peers",
			},
			[]string{"mux"},
		),
		PeerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastmux_peer_events_total",
				Help: "Peer registrations and removals",
			},
			[]string{"mux", "event"},
		),
		SettleTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fastmux_dispatch_duration_seconds",
				Help:    "Time from fan-out of a chunk to its resolution",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"mux"},
		),
	}
}

// Bind starts recording m's observations under the given name. The returned
// function stops recording. It must be called on the loop owning m.
func Bind[T any](c *Collector, name string, m *mux.Multiplexer[T]) (off func()) {
	peers := c.Peers.WithLabelValues(name)
	peers.Set(float64(m.Len()))

	offs := []func(){
		m.OnSettled(func(d fastmux.Dispatch) {
			c.Dispatches.WithLabelValues(name, d.State().String()).Inc()
			c.SettleTime.WithLabelValues(name).Observe(d.Duration().Seconds())
		}),
		m.OnWaiting(func(func()) {
			c.Waiting.WithLabelValues(name).Inc()
		}),
		m.OnLaggard(func(sink.Sink[T]) {
			c.Laggards.WithLabelValues(name).Inc()
		}),
		m.OnPeerAdded(func(sink.Sink[T]) {
			peers.Inc()
			c.PeerEvents.WithLabelValues(name, "added").Inc()
		}),
		m.OnPeerRemoved(func(sink.Sink[T]) {
			peers.Dec()
			c.PeerEvents.WithLabelValues(name, "removed").Inc()
		}),
	}

	return func() {
		for _, off := range offs {
			off()
		}
	}
}
