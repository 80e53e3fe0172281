package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Election phases as exported on strike_cluster_election_phase
var phases = []string{"no_coordinator", "election_in_progress", "waiting_for_coordinator", "steady"}

// UpdateMembership records the current partition sizes
func (r *Registry) UpdateMembership(members, candidates, subordinates int) {
	r.ClusterMembersTotal.Set(float64(members))
	r.ClusterCandidatesTotal.Set(float64(candidates))
	r.ClusterSubordinatesTotal.Set(float64(subordinates))
}

// UpdateLocks records the sizes of the advisory lock sets
func (r *Registry) UpdateLocks(identities, roomIDs int) {
	r.LockedIdentitiesTotal.Set(float64(identities))
	r.LockedRoomIDsTotal.Set(float64(roomIDs))
}

// SetClusterRole sets the current cluster role
func (r *Registry) SetClusterRole(role string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ClusterRole.WithLabelValues(RoleCoordinator).Set(0)
	r.ClusterRole.WithLabelValues(RoleMember).Set(0)
	r.ClusterRole.WithLabelValues(role).Set(1)
}

// SetElectionPhase marks phase as the only active election phase
func (r *Registry) SetElectionPhase(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range phases {
		r.ClusterPhase.WithLabelValues(p).Set(0)
	}
	r.ClusterPhase.WithLabelValues(phase).Set(1)
}

// RecordElection counts an election outcome
func (r *Registry) RecordElection(result string) {
	r.ElectionsTotal.WithLabelValues(result).Inc()
}

// RecordCoordinatorChange counts a coordinator change and the election that produced it
func (r *Registry) RecordCoordinatorChange(electionDuration time.Duration) {
	r.ClusterCoordinatorChangesTotal.Inc()
	if electionDuration > 0 {
		r.ElectionDuration.Observe(electionDuration.Seconds())
	}
}

// RecordTimeout counts a scheduler event for an election phase
func (r *Registry) RecordTimeout(phase, outcome string) {
	r.ElectionTimeoutsTotal.WithLabelValues(phase, outcome).Inc()
}

// RecordMessageSent counts an outbound peer message
func (r *Registry) RecordMessageSent(msgType string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	r.PeerMessagesSentTotal.WithLabelValues(msgType, status).Inc()
}

// RecordMessageReceived counts an inbound peer message
func (r *Registry) RecordMessageReceived(msgType string) {
	r.PeerMessagesReceivedTotal.WithLabelValues(msgType).Inc()
}

// RecordProbe counts a liveness probe
func (r *Registry) RecordProbe(online bool, duration time.Duration) {
	result := "offline"
	if online {
		result = "online"
	}
	r.PeerProbesTotal.WithLabelValues(result).Inc()
	r.PeerProbeDuration.Observe(duration.Seconds())
}

// UpdateSystemMetrics refreshes uptime and goroutine gauges
func (r *Registry) UpdateSystemMetrics() {
	r.UptimeSeconds.Set(time.Since(r.startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
