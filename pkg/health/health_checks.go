package health

import (
	"fmt"
	"time"

	"github.com/strikechat/strike-server/pkg/cluster"
	strtls "github.com/strikechat/strike-server/pkg/tls"
)

// ElectionView is the part of cluster state the election checks read
type ElectionView interface {
	Phase() cluster.ElectionPhase
	Coordinator() (cluster.ServerInfo, bool)
	ElectionStartedAt() time.Time
}

// MembershipView is the part of cluster state the membership check reads
type MembershipView interface {
	Self() (cluster.ServerInfo, bool)
	Members() []cluster.ServerInfo
	Candidates() []cluster.ServerInfo
}

// SimpleCheck creates a simple health check that always returns healthy
func SimpleCheck(name string) Check {
	return Check{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now(),
	}
}

// PingCheck reports a component unhealthy while ping fails
func PingCheck(name string, ping func() error) CheckFunc {
	return func() Check {
		check := Check{Name: name}

		if err := ping(); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "OK"
		}

		return check
	}
}

// CoordinatorCheck reports whether this server knows who the coordinator is.
// An election in progress is degraded, no coordinator and no election is unhealthy.
func CoordinatorCheck(state ElectionView) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "coordinator",
			Details: make(map[string]any),
		}

		phase := state.Phase()
		check.Details["phase"] = phase.String()
		if coord, ok := state.Coordinator(); ok {
			check.Details["coordinator"] = coord.ServerID
		}

		switch phase {
		case cluster.PhaseSteady:
			check.Status = StatusHealthy
			check.Message = "Coordinator known"
		case cluster.PhaseElectionInProgress, cluster.PhaseWaitingForCoordinator:
			check.Status = StatusDegraded
			check.Message = "Election in progress"
		default:
			check.Status = StatusUnhealthy
			check.Message = "No coordinator"
		}

		return check
	}
}

// ElectionStallCheck turns unhealthy when an election has run longer than max
func ElectionStallCheck(state ElectionView, max time.Duration) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "election",
			Status:  StatusHealthy,
			Details: make(map[string]any),
		}

		started := state.ElectionStartedAt()
		if started.IsZero() {
			check.Message = "No election running"
			return check
		}

		running := time.Since(started)
		check.Details["running_ms"] = running.Milliseconds()
		if running > max {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("Election running for %s", running.Round(time.Millisecond))
		} else {
			check.Message = "Election running"
		}

		return check
	}
}

// MembershipCheck reports the size of the known cluster. A server that
// is not in its own membership list is unhealthy, one alone is degraded.
func MembershipCheck(state MembershipView) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "membership",
			Details: make(map[string]any),
		}

		members := state.Members()
		check.Details["members"] = len(members)
		check.Details["candidates"] = len(state.Candidates())

		self, ok := state.Self()
		switch {
		case !ok:
			check.Status = StatusUnhealthy
			check.Message = "Self not initialised"
		case len(members) <= 1:
			check.Details["self"] = self.ServerID
			check.Status = StatusDegraded
			check.Message = "No peers configured"
		default:
			check.Details["self"] = self.ServerID
			check.Status = StatusHealthy
			check.Message = "Cluster membership loaded"
		}

		return check
	}
}

// CertificateExpiryCheck degrades when the management certificate expires
// within warnWithin and is unhealthy once it has expired
func CertificateExpiryCheck(info func() (*strtls.CertificateInfo, error), warnWithin time.Duration) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "certificate",
			Details: make(map[string]any),
		}

		ci, err := info()
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}

		check.Details["subject"] = ci.Subject
		check.Details["not_after"] = ci.NotAfter

		switch {
		case ci.IsExpired():
			check.Status = StatusUnhealthy
			check.Message = "Certificate expired"
		case ci.ExpiresIn() < warnWithin:
			check.Status = StatusDegraded
			check.Message = "Certificate expires soon"
		default:
			check.Status = StatusHealthy
			check.Message = "Certificate valid"
		}

		return check
	}
}

// MemoryCheck creates a health check for memory usage
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		alloc, sys := getUsage()

		check.Details["alloc_bytes"] = alloc
		check.Details["sys_bytes"] = sys

		if sys > 0 && float64(alloc)/float64(sys)*100 > 90 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}
