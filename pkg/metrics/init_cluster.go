package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initClusterMetrics() {
	r.ClusterMembersTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "strike_cluster_members_total",
			Help: "Number of known servers including self",
		},
	)

	r.ClusterCandidatesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "strike_cluster_candidates_total",
			Help: "Number of known servers senior to this server",
		},
	)

	r.ClusterSubordinatesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "strike_cluster_subordinates_total",
			Help: "Number of known servers junior to this server",
		},
	)

	r.ClusterCoordinatorChangesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "strike_cluster_coordinator_changes_total",
			Help: "Number of times a different coordinator was accepted",
		},
	)

	r.ClusterRole = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strike_cluster_role",
			Help: "Server role in cluster (1 for current role, 0 otherwise)",
		},
		[]string{"role"}, // coordinator, member
	)

	r.ClusterPhase = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strike_cluster_election_phase",
			Help: "Election state machine phase (1 for current phase, 0 otherwise)",
		},
		[]string{"phase"},
	)

	r.LockedIdentitiesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "strike_cluster_locked_identities_total",
			Help: "Identities locked while a global uniqueness check is in flight",
		},
	)

	r.LockedRoomIDsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "strike_cluster_locked_room_ids_total",
			Help: "Room ids locked while a global uniqueness check is in flight",
		},
	)
}
