package cluster

import (
	"fmt"

	"github.com/strikechat/strike-server/pkg/validation"
)

// IsValidIdentity reports whether s is alphanumeric and 3 to 16 characters long
func IsValidIdentity(s string) bool {
	return validation.IsValidIdentity(s)
}

// IsValidIdentity is the identity rule exposed on the state for registration flows
func (s *ClusterState) IsValidIdentity(id string) bool {
	return IsValidIdentity(id)
}

// LockIdentity marks id as being registered. Locking twice is a no-op.
func (s *ClusterState) LockIdentity(id string) {
	s.lockMu.Lock()
	s.lockedIdentities[id] = struct{}{}
	s.updateLockMetricsLocked()
	s.lockMu.Unlock()
}

// UnlockIdentity releases id
func (s *ClusterState) UnlockIdentity(id string) {
	s.lockMu.Lock()
	delete(s.lockedIdentities, id)
	s.updateLockMetricsLocked()
	s.lockMu.Unlock()
}

// IsIdentityLocked reports whether id is locked
func (s *ClusterState) IsIdentityLocked(id string) bool {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	_, ok := s.lockedIdentities[id]
	return ok
}

// LockRoomID marks a room id as being registered. Locking twice is a no-op.
func (s *ClusterState) LockRoomID(id string) {
	s.lockMu.Lock()
	s.lockedRoomIDs[id] = struct{}{}
	s.updateLockMetricsLocked()
	s.lockMu.Unlock()
}

// UnlockRoomID releases a room id
func (s *ClusterState) UnlockRoomID(id string) {
	s.lockMu.Lock()
	delete(s.lockedRoomIDs, id)
	s.updateLockMetricsLocked()
	s.lockMu.Unlock()
}

// IsRoomIDLocked reports whether a room id is locked
func (s *ClusterState) IsRoomIDLocked(id string) bool {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	_, ok := s.lockedRoomIDs[id]
	return ok
}

// TryLockIdentity validates and locks id, failing if it is already held.
// The returned release func is safe to call more than once.
func (s *ClusterState) TryLockIdentity(id string) (release func(), err error) {
	if err := validation.ValidateIdentity(id); err != nil {
		return nil, err
	}
	return s.tryLock(s.lockedIdentities, id, ErrIdentityLocked)
}

// TryLockRoomID validates and locks a room id, failing if it is already held
func (s *ClusterState) TryLockRoomID(id string) (release func(), err error) {
	if err := validation.ValidateRoomID(id); err != nil {
		return nil, err
	}
	return s.tryLock(s.lockedRoomIDs, id, ErrRoomIDLocked)
}

// WithIdentityLock runs fn while holding the lock on id. The lock is released
// on every exit path, including a panic in fn.
func (s *ClusterState) WithIdentityLock(id string, fn func() error) error {
	release, err := s.TryLockIdentity(id)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// WithRoomIDLock runs fn while holding the lock on a room id
func (s *ClusterState) WithRoomIDLock(id string, fn func() error) error {
	release, err := s.TryLockRoomID(id)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// LockedCounts returns the sizes of the identity and room id lock sets
func (s *ClusterState) LockedCounts() (identities, roomIDs int) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	return len(s.lockedIdentities), len(s.lockedRoomIDs)
}

func (s *ClusterState) tryLock(set map[string]struct{}, id string, lockedErr error) (func(), error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if _, held := set[id]; held {
		return nil, fmt.Errorf("%w: %s", lockedErr, id)
	}
	set[id] = struct{}{}
	s.updateLockMetricsLocked()

	released := false
	return func() {
		s.lockMu.Lock()
		defer s.lockMu.Unlock()
		if released {
			return
		}
		released = true
		delete(set, id)
		s.updateLockMetricsLocked()
	}, nil
}

func (s *ClusterState) updateLockMetricsLocked() {
	if s.metricsRegistry != nil {
		s.metricsRegistry.UpdateLocks(len(s.lockedIdentities), len(s.lockedRoomIDs))
	}
}
