package cluster

import (
	"sync/atomic"
	"time"

	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
	"github.com/strikechat/strike-server/pkg/pubsub"
	"github.com/strikechat/strike-server/pkg/scheduler"
)

// Scheduler phases used within an election group
const (
	PhaseAnswer      = "answer"
	PhaseCoordinator = "coordinator"
)

// EventsTopic is the pubsub topic election events are published on
const EventsTopic = "cluster.election"

// EventType identifies an election lifecycle event
type EventType string

const (
	EventElectionStarted    EventType = "election_started"
	EventElectionStopped    EventType = "election_stopped"
	EventCoordinatorChanged EventType = "coordinator_changed"
)

// Event is published on EventsTopic as the election progresses
type Event struct {
	Type        EventType
	ServerID    string     // local server
	Coordinator ServerInfo // set for EventCoordinatorChanged
	Attempt     int        // retry number for EventElectionStarted
	Time        time.Time
}

// ElectionCoordinator runs the Bully election protocol for the local server
type ElectionCoordinator struct {
	state     *ClusterState
	scheduler *scheduler.TimeoutScheduler
	messenger Messenger
	prober    Prober
	config    Config

	events          *pubsub.PubSub[Event]
	logger          logging.Logger
	metricsRegistry *metrics.Registry

	// consecutive coordinator-announcement timeouts in the current election chain
	retries atomic.Int32
}

// CoordinatorOption configures an ElectionCoordinator
type CoordinatorOption func(*ElectionCoordinator)

// WithProber enables liveness filtering of candidates on election retries
func WithProber(p Prober) CoordinatorOption {
	return func(e *ElectionCoordinator) { e.prober = p }
}

// WithEvents publishes election events on ps
func WithEvents(ps *pubsub.PubSub[Event]) CoordinatorOption {
	return func(e *ElectionCoordinator) { e.events = ps }
}

// WithLogger sets the coordinator logger
func WithLogger(l logging.Logger) CoordinatorOption {
	return func(e *ElectionCoordinator) { e.logger = l }
}

// WithMetrics sets the registry election outcomes are recorded on
func WithMetrics(r *metrics.Registry) CoordinatorOption {
	return func(e *ElectionCoordinator) { e.metricsRegistry = r }
}

// NewElectionCoordinator creates a coordinator over state. Timeouts are taken
// from state; cfg supplies retry and probe limits.
func NewElectionCoordinator(state *ClusterState, sched *scheduler.TimeoutScheduler, messenger Messenger, cfg Config, opts ...CoordinatorOption) *ElectionCoordinator {
	e := &ElectionCoordinator{
		state:           state,
		scheduler:       sched,
		messenger:       messenger,
		config:          cfg,
		logger:          logging.NewNopLogger(),
		metricsRegistry: metrics.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logging.Component("election"))
	return e
}

// State returns the cluster state the coordinator operates on
func (e *ElectionCoordinator) State() *ClusterState {
	return e.state
}

// Retries returns the number of consecutive coordinator-announcement timeouts
func (e *ElectionCoordinator) Retries() int {
	return int(e.retries.Load())
}

// electionGroup scopes scheduler keys to the server running the election
func electionGroup(serverID string) string {
	return "election-" + serverID
}

func (e *ElectionCoordinator) publish(ev Event) {
	if e.events == nil {
		return
	}
	ev.Time = time.Now()
	e.events.Publish(EventsTopic, ev)
}

func (e *ElectionCoordinator) recordElection(result string) {
	if e.metricsRegistry != nil {
		e.metricsRegistry.RecordElection(result)
	}
}
