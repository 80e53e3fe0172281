package cluster

import "sort"

// Self returns this server's info and whether InitSelf has run
func (s *ClusterState) Self() (ServerInfo, bool) {
	s.memberMu.RLock()
	defer s.memberMu.RUnlock()
	return s.self, s.hasSelf
}

// Member returns a known server by id
func (s *ClusterState) Member(serverID string) (ServerInfo, bool) {
	s.memberMu.RLock()
	defer s.memberMu.RUnlock()
	info, ok := s.members[serverID]
	return info, ok
}

// Members returns all known servers including self, ordered by ServerID
func (s *ClusterState) Members() []ServerInfo {
	s.memberMu.RLock()
	out := make([]ServerInfo, 0, len(s.members))
	for _, info := range s.members {
		out = append(out, info)
	}
	s.memberMu.RUnlock()

	sortByPriority(out)
	return out
}

// Candidates returns the servers senior to self in ascending priority
func (s *ClusterState) Candidates() []ServerInfo {
	s.memberMu.RLock()
	defer s.memberMu.RUnlock()

	out := make([]ServerInfo, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Subordinates returns the servers junior to self, ordered by ServerID
func (s *ClusterState) Subordinates() []ServerInfo {
	s.memberMu.RLock()
	out := make([]ServerInfo, 0, len(s.subordinates))
	for _, info := range s.subordinates {
		out = append(out, info)
	}
	s.memberMu.RUnlock()

	sortByPriority(out)
	return out
}

// IsCandidate reports whether serverID is a known senior peer
func (s *ClusterState) IsCandidate(serverID string) bool {
	s.memberMu.RLock()
	defer s.memberMu.RUnlock()
	_, found := s.candidateIndexLocked(serverID)
	return found
}

// IsSubordinate reports whether serverID is a known junior peer
func (s *ClusterState) IsSubordinate(serverID string) bool {
	s.memberMu.RLock()
	defer s.memberMu.RUnlock()
	_, ok := s.subordinates[serverID]
	return ok
}

// NextCandidateAtOrAfter returns the candidate with the smallest id that is
// greater than or equal to serverID.
func (s *ClusterState) NextCandidateAtOrAfter(serverID string) (ServerInfo, bool) {
	s.memberMu.RLock()
	defer s.memberMu.RUnlock()

	i, _ := s.candidateIndexLocked(serverID)
	if i == len(s.candidates) {
		return ServerInfo{}, false
	}
	return s.candidates[i], true
}

func sortByPriority(servers []ServerInfo) {
	sort.Slice(servers, func(i, j int) bool {
		return ComparePriority(servers[i].ServerID, servers[j].ServerID) < 0
	})
}
