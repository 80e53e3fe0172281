package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for a strike server process
type Registry struct {
	// Cluster membership and coordinator
	ClusterMembersTotal            prometheus.Gauge
	ClusterCandidatesTotal         prometheus.Gauge
	ClusterSubordinatesTotal       prometheus.Gauge
	ClusterCoordinatorChangesTotal prometheus.Counter
	ClusterRole                    *prometheus.GaugeVec
	ClusterPhase                   *prometheus.GaugeVec
	LockedIdentitiesTotal          prometheus.Gauge
	LockedRoomIDsTotal             prometheus.Gauge

	// Election protocol
	ElectionsTotal        *prometheus.CounterVec
	ElectionDuration      prometheus.Histogram
	ElectionTimeoutsTotal *prometheus.CounterVec

	// Peer messaging and liveness probes
	PeerMessagesSentTotal     *prometheus.CounterVec
	PeerMessagesReceivedTotal *prometheus.CounterVec
	PeerProbesTotal           *prometheus.CounterVec
	PeerProbeDuration         prometheus.Histogram

	// System Metrics
	UptimeSeconds prometheus.Gauge
	GoRoutines    prometheus.Gauge

	registry  *prometheus.Registry
	startTime time.Time
	mu        sync.Mutex
}

// Label values shared by the cluster packages
const (
	RoleCoordinator = "coordinator"
	RoleMember      = "member"

	ResultWon      = "won"
	ResultDeferred = "deferred"
	ResultAborted  = "aborted"
	ResultRetried  = "retried"

	OutcomeScheduled = "scheduled"
	OutcomeFired     = "fired"
	OutcomeCancelled = "cancelled"

	StatusOK     = "ok"
	StatusFailed = "failed"
)

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	r.initClusterMetrics()
	r.initElectionMetrics()
	r.initPeerMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
