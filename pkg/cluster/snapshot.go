package cluster

// StateSnapshot is a point-in-time view of ClusterState for the management API
type StateSnapshot struct {
	Self                 *ServerInfo  `json:"self,omitempty"`
	Coordinator          *ServerInfo  `json:"coordinator,omitempty"`
	Phase                string       `json:"phase"`
	OngoingElection      bool         `json:"ongoing_election"`
	AnswerReceived       bool         `json:"answer_received"`
	CoordinatorAnnounced bool         `json:"coordinator_announced"`
	Members              []ServerInfo `json:"members"`
	Candidates           []ServerInfo `json:"candidates"`
	Subordinates         []ServerInfo `json:"subordinates"`
	LockedIdentities     int          `json:"locked_identities"`
	LockedRoomIDs        int          `json:"locked_room_ids"`
}

// Snapshot copies the current state. Fields from different lock domains may
// reflect slightly different instants.
func (s *ClusterState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Members:      s.Members(),
		Candidates:   s.Candidates(),
		Subordinates: s.Subordinates(),
	}

	if self, ok := s.Self(); ok {
		snap.Self = &self
	}

	s.electionMu.RLock()
	if s.hasCoordinator {
		c := s.coordinator
		snap.Coordinator = &c
	}
	snap.Phase = s.phaseLocked().String()
	snap.OngoingElection = s.ongoingElection
	snap.AnswerReceived = s.answerReceived
	snap.CoordinatorAnnounced = s.coordinatorAnnounced
	s.electionMu.RUnlock()

	snap.LockedIdentities, snap.LockedRoomIDs = s.LockedCounts()
	return snap
}
