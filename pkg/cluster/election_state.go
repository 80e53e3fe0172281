package cluster

import (
	"time"

	"github.com/strikechat/strike-server/pkg/metrics"
)

// Coordinator returns the accepted coordinator, if any
func (s *ClusterState) Coordinator() (ServerInfo, bool) {
	s.electionMu.RLock()
	defer s.electionMu.RUnlock()
	return s.coordinator, s.hasCoordinator
}

// SetCoordinator replaces the coordinator without touching election flags.
// Use AcceptCoordinator to end an election.
func (s *ClusterState) SetCoordinator(info ServerInfo) {
	s.electionMu.Lock()
	s.coordinator = info
	s.hasCoordinator = true
	s.electionMu.Unlock()

	s.updateRoleMetrics(info)
}

// AcceptCoordinator sets the coordinator and clears every election flag in
// one step. It reports whether the coordinator changed.
func (s *ClusterState) AcceptCoordinator(info ServerInfo) bool {
	s.electionMu.Lock()
	changed := !s.hasCoordinator || s.coordinator != info
	startedAt := s.electionStartedAt

	s.coordinator = info
	s.hasCoordinator = true
	s.ongoingElection = false
	s.answerReceived = false
	s.coordinatorAnnounced = false
	s.electionStartedAt = time.Time{}
	phase := s.phaseLocked()
	s.electionMu.Unlock()

	if s.metricsRegistry != nil {
		s.metricsRegistry.SetElectionPhase(phase.String())
		if changed {
			var d time.Duration
			if !startedAt.IsZero() {
				d = time.Since(startedAt)
			}
			s.metricsRegistry.RecordCoordinatorChange(d)
		}
	}
	s.updateRoleMetrics(info)

	return changed
}

// clearCoordinatorIf forgets the coordinator when it is serverID
func (s *ClusterState) clearCoordinatorIf(serverID string) {
	s.electionMu.Lock()
	if s.hasCoordinator && s.coordinator.ServerID == serverID {
		s.coordinator = ServerInfo{}
		s.hasCoordinator = false
	}
	phase := s.phaseLocked()
	s.electionMu.Unlock()

	s.recordPhase(phase)
}

// BeginElection marks an election as running and clears its sub-flags.
// It reports whether an election was already in progress.
func (s *ClusterState) BeginElection() bool {
	s.electionMu.Lock()
	wasRunning := s.ongoingElection
	s.ongoingElection = true
	s.answerReceived = false
	s.coordinatorAnnounced = false
	if !wasRunning {
		s.electionStartedAt = time.Now()
	}
	s.electionMu.Unlock()

	s.recordPhase(PhaseElectionInProgress)
	return wasRunning
}

// TryBeginElection starts an election only if none is running
func (s *ClusterState) TryBeginElection() bool {
	s.electionMu.Lock()
	if s.ongoingElection {
		s.electionMu.Unlock()
		return false
	}
	s.ongoingElection = true
	s.answerReceived = false
	s.coordinatorAnnounced = false
	s.electionStartedAt = time.Now()
	s.electionMu.Unlock()

	s.recordPhase(PhaseElectionInProgress)
	return true
}

// MarkAnswerReceived records the first answer of a running election. It
// returns false when no election is running or an answer was already seen.
func (s *ClusterState) MarkAnswerReceived() bool {
	s.electionMu.Lock()
	if !s.ongoingElection || s.answerReceived {
		s.electionMu.Unlock()
		return false
	}
	s.answerReceived = true
	s.electionMu.Unlock()

	s.recordPhase(PhaseWaitingForCoordinator)
	return true
}

// OngoingElection reports whether an election is running
func (s *ClusterState) OngoingElection() bool {
	s.electionMu.RLock()
	defer s.electionMu.RUnlock()
	return s.ongoingElection
}

// SetOngoingElection sets the election-running flag
func (s *ClusterState) SetOngoingElection(v bool) {
	s.electionMu.Lock()
	s.ongoingElection = v
	phase := s.phaseLocked()
	s.electionMu.Unlock()

	s.recordPhase(phase)
}

// AnswerReceived reports whether a senior peer answered the running election
func (s *ClusterState) AnswerReceived() bool {
	s.electionMu.RLock()
	defer s.electionMu.RUnlock()
	return s.answerReceived
}

// SetAnswerReceived sets the answer flag
func (s *ClusterState) SetAnswerReceived(v bool) {
	s.electionMu.Lock()
	s.answerReceived = v
	phase := s.phaseLocked()
	s.electionMu.Unlock()

	s.recordPhase(phase)
}

// CoordinatorAnnounced reports whether SET_COORDINATOR arrived for the running election
func (s *ClusterState) CoordinatorAnnounced() bool {
	s.electionMu.RLock()
	defer s.electionMu.RUnlock()
	return s.coordinatorAnnounced
}

// SetCoordinatorAnnounced sets the announcement flag
func (s *ClusterState) SetCoordinatorAnnounced(v bool) {
	s.electionMu.Lock()
	defer s.electionMu.Unlock()
	s.coordinatorAnnounced = v
}

// ElectionStartedAt returns when the running election began, or the zero time
func (s *ClusterState) ElectionStartedAt() time.Time {
	s.electionMu.RLock()
	defer s.electionMu.RUnlock()
	return s.electionStartedAt
}

// Phase derives the election phase from the flags and coordinator
func (s *ClusterState) Phase() ElectionPhase {
	s.electionMu.RLock()
	defer s.electionMu.RUnlock()
	return s.phaseLocked()
}

func (s *ClusterState) phaseLocked() ElectionPhase {
	switch {
	case s.ongoingElection && s.answerReceived:
		return PhaseWaitingForCoordinator
	case s.ongoingElection:
		return PhaseElectionInProgress
	case s.hasCoordinator:
		return PhaseSteady
	default:
		return PhaseNoCoordinator
	}
}

func (s *ClusterState) recordPhase(p ElectionPhase) {
	if s.metricsRegistry != nil {
		s.metricsRegistry.SetElectionPhase(p.String())
	}
}

func (s *ClusterState) updateRoleMetrics(coordinator ServerInfo) {
	if s.metricsRegistry == nil {
		return
	}
	self, ok := s.Self()
	if ok && self.ServerID == coordinator.ServerID {
		s.metricsRegistry.SetClusterRole(metrics.RoleCoordinator)
	} else {
		s.metricsRegistry.SetClusterRole(metrics.RoleMember)
	}
}
