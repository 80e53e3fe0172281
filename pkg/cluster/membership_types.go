package cluster

import (
	"sync"
	"time"

	"github.com/strikechat/strike-server/pkg/metrics"
)

// ElectionPhase is the election state derived from ClusterState
type ElectionPhase int

const (
	// PhaseNoCoordinator means no coordinator has been accepted yet
	PhaseNoCoordinator ElectionPhase = iota
	// PhaseElectionInProgress means START_ELECTION was sent and no answer arrived yet
	PhaseElectionInProgress
	// PhaseWaitingForCoordinator means a senior peer answered and its announcement is pending
	PhaseWaitingForCoordinator
	// PhaseSteady means a coordinator is accepted and no election is running
	PhaseSteady
)

// String returns the string representation of an ElectionPhase
func (p ElectionPhase) String() string {
	switch p {
	case PhaseNoCoordinator:
		return "no_coordinator"
	case PhaseElectionInProgress:
		return "election_in_progress"
	case PhaseWaitingForCoordinator:
		return "waiting_for_coordinator"
	case PhaseSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// ClusterState is the per-process registry of known servers, the accepted
// coordinator, election progress and advisory registration locks.
//
// Concurrent Safety:
// 1. Membership, election and lock fields each have their own mutex
// 2. When two are needed, membership is always acquired before election
// 3. Collection reads return copies
// 4. No method performs network I/O
type ClusterState struct {
	// membership
	memberMu     sync.RWMutex
	members      map[string]ServerInfo // serverID -> info, includes self
	candidates   []ServerInfo          // senior to self, ascending ServerID
	subordinates map[string]ServerInfo // junior to self
	self         ServerInfo
	hasSelf      bool

	// election
	electionMu           sync.RWMutex
	coordinator          ServerInfo
	hasCoordinator       bool
	ongoingElection      bool
	answerReceived       bool
	coordinatorAnnounced bool
	electionStartedAt    time.Time

	// locks
	lockMu           sync.Mutex
	lockedIdentities map[string]struct{}
	lockedRoomIDs    map[string]struct{}

	timeoutMu                  sync.RWMutex
	answerTimeout              time.Duration
	coordinatorAnnounceTimeout time.Duration

	metricsRegistry *metrics.Registry
}

// NewClusterState creates an empty cluster state using the election timeouts of cfg
func NewClusterState(cfg Config) *ClusterState {
	return NewClusterStateWithMetrics(cfg, metrics.DefaultRegistry())
}

// NewClusterStateWithMetrics creates an empty cluster state reporting to reg.
// reg may be nil.
func NewClusterStateWithMetrics(cfg Config, reg *metrics.Registry) *ClusterState {
	s := &ClusterState{
		members:                    make(map[string]ServerInfo),
		subordinates:               make(map[string]ServerInfo),
		lockedIdentities:           make(map[string]struct{}),
		lockedRoomIDs:              make(map[string]struct{}),
		answerTimeout:              cfg.AnswerTimeout,
		coordinatorAnnounceTimeout: cfg.CoordinatorAnnounceTimeout,
		metricsRegistry:            reg,
	}

	if s.metricsRegistry != nil {
		s.metricsRegistry.UpdateMembership(0, 0, 0)
		s.metricsRegistry.SetElectionPhase(PhaseNoCoordinator.String())
	}

	return s
}

// AnswerTimeout returns how long an election waits for a senior peer to answer
func (s *ClusterState) AnswerTimeout() time.Duration {
	s.timeoutMu.RLock()
	defer s.timeoutMu.RUnlock()
	return s.answerTimeout
}

// CoordinatorAnnounceTimeout returns how long to wait for SET_COORDINATOR after an answer
func (s *ClusterState) CoordinatorAnnounceTimeout() time.Duration {
	s.timeoutMu.RLock()
	defer s.timeoutMu.RUnlock()
	return s.coordinatorAnnounceTimeout
}

// SetTimeouts replaces both election timeouts
func (s *ClusterState) SetTimeouts(answer, coordinatorAnnounce time.Duration) {
	s.timeoutMu.Lock()
	defer s.timeoutMu.Unlock()
	s.answerTimeout = answer
	s.coordinatorAnnounceTimeout = coordinatorAnnounce
}
