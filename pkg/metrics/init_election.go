package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initElectionMetrics() {
	r.ElectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strike_elections_total",
			Help: "Election attempts by outcome",
		},
		[]string{"result"}, // won, deferred, aborted, retried
	)

	r.ElectionDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strike_election_duration_seconds",
			Help:    "Time from starting an election to accepting a coordinator",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
	)

	r.ElectionTimeoutsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "strike_election_timeouts_total",
			Help: "Election timeouts by phase and outcome",
		},
		[]string{"phase", "outcome"}, // outcome: scheduled, fired, cancelled
	)
}
