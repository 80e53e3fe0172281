package cluster

import (
	"fmt"
	"sort"
)

// AddMember registers or updates a server. Once self is known the server is
// placed in candidates or subordinates by priority; adding self is a no-op.
func (s *ClusterState) AddMember(info ServerInfo) error {
	if info.ServerID == "" {
		return ErrInvalidServerID
	}

	s.memberMu.Lock()
	defer s.memberMu.Unlock()

	if s.hasSelf && info.ServerID == s.self.ServerID {
		return nil
	}

	s.members[info.ServerID] = info
	if s.hasSelf {
		s.placeLocked(info)
	}

	s.updateMembershipMetricsLocked()
	return nil
}

// RemoveMember deletes a server from membership and both buckets. If it was
// the accepted coordinator, the coordinator is cleared.
func (s *ClusterState) RemoveMember(serverID string) error {
	s.memberMu.Lock()

	if s.hasSelf && serverID == s.self.ServerID {
		s.memberMu.Unlock()
		return ErrCannotRemoveSelf
	}
	if _, exists := s.members[serverID]; !exists {
		s.memberMu.Unlock()
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}

	delete(s.members, serverID)
	delete(s.subordinates, serverID)
	if i, found := s.candidateIndexLocked(serverID); found {
		s.candidates = append(s.candidates[:i], s.candidates[i+1:]...)
	}
	s.updateMembershipMetricsLocked()

	// Lock order: membership before election
	s.clearCoordinatorIf(serverID)
	s.memberMu.Unlock()

	return nil
}

// InitSelf selects self from the known members and partitions every other
// member into candidates and subordinates.
func (s *ClusterState) InitSelf(serverID string) error {
	s.memberMu.Lock()
	defer s.memberMu.Unlock()

	self, ok := s.members[serverID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}

	s.self = self
	s.hasSelf = true
	s.candidates = s.candidates[:0]
	s.subordinates = make(map[string]ServerInfo)
	for _, info := range s.members {
		if info.ServerID != serverID {
			s.placeLocked(info)
		}
	}

	s.updateMembershipMetricsLocked()
	return nil
}

// placeLocked puts info in the bucket matching its priority relative to self.
// Must be called with memberMu held and self known.
func (s *ClusterState) placeLocked(info ServerInfo) {
	switch cmp := ComparePriority(info.ServerID, s.self.ServerID); {
	case cmp > 0:
		i, found := s.candidateIndexLocked(info.ServerID)
		if found {
			s.candidates[i] = info
			return
		}
		s.candidates = append(s.candidates, ServerInfo{})
		copy(s.candidates[i+1:], s.candidates[i:])
		s.candidates[i] = info
	case cmp < 0:
		s.subordinates[info.ServerID] = info
	}
}

// candidateIndexLocked returns the position of the first candidate whose id
// is not below serverID and whether that candidate has exactly serverID.
func (s *ClusterState) candidateIndexLocked(serverID string) (int, bool) {
	i := sort.Search(len(s.candidates), func(i int) bool {
		return ComparePriority(s.candidates[i].ServerID, serverID) >= 0
	})
	return i, i < len(s.candidates) && s.candidates[i].ServerID == serverID
}

func (s *ClusterState) updateMembershipMetricsLocked() {
	if s.metricsRegistry != nil {
		s.metricsRegistry.UpdateMembership(len(s.members), len(s.candidates), len(s.subordinates))
	}
}
