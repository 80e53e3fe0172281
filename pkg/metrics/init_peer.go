package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPeerMetrics() {
	r.PeerMessagesSentTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strike_peer_messages_sent_total",
			Help: "Election messages sent to peers",
		},
		[]string{"type", "status"},
	)

	r.PeerMessagesReceivedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strike_peer_messages_received_total",
			Help: "Election messages received from peers",
		},
		[]string{"type"},
	)

	r.PeerProbesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strike_peer_probes_total",
			Help: "Liveness probes by result",
		},
		[]string{"result"}, // online, offline
	)

	r.PeerProbeDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strike_peer_probe_duration_seconds",
			Help:    "Duration of liveness probes",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)
}
