package cluster

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/validation"
)

// Monitor watches the coordinator and starts an election when it is missing
// or fails FailureThreshold consecutive probes
type Monitor struct {
	election *ElectionCoordinator
	prober   Prober
	config   Config
	logger   logging.Logger

	mu       sync.Mutex
	failures map[string]int // serverID -> consecutive failed probes

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewMonitor creates a failure detector driving election
func NewMonitor(election *ElectionCoordinator, prober Prober, cfg Config, logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Monitor{
		election: election,
		prober:   prober,
		config:   cfg,
		logger:   logger.With(logging.Component("monitor")),
		failures: make(map[string]int),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the monitor loop
func (m *Monitor) Start(ctx context.Context) error {
	if !m.config.EnableAutoFailover {
		m.logger.Info("auto-failover disabled, monitor inactive")
		return nil
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
	m.logger.Info("monitor started", logging.Duration("interval", m.config.HeartbeatInterval))
	return nil
}

// Stop ends the monitor loop and waits for it to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	interval := validation.DefaultOrDuration(m.config.HeartbeatInterval, DefaultConfig().HeartbeatInterval)

	// Randomize initial wait to avoid every server electing at once
	jitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	select {
	case <-time.After(jitter):
	case <-m.stopCh:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one detection round
func (m *Monitor) Check(ctx context.Context) {
	state := m.election.State()
	self, ok := state.Self()
	if !ok || state.OngoingElection() {
		return
	}

	coordinator, ok := state.Coordinator()
	if !ok {
		m.logger.Info("no coordinator known, starting election")
		m.startElection(ctx)
		return
	}
	if coordinator.ServerID == self.ServerID || m.prober == nil {
		return
	}

	timeout := validation.DefaultOrDuration(m.config.ProbeTimeout, defaultProbeTimeout)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	online := m.prober.Probe(pctx, coordinator)
	cancel()

	failures := m.recordProbe(coordinator.ServerID, online)
	if online {
		return
	}

	m.logger.Warn("coordinator probe failed",
		logging.Coordinator(coordinator.ServerID),
		logging.Count(failures))

	threshold := validation.DefaultOrInt(m.config.FailureThreshold, 1)
	if failures >= threshold {
		m.resetFailures(coordinator.ServerID)
		m.logger.Warn("coordinator unreachable, starting election", logging.Coordinator(coordinator.ServerID))
		m.startElection(ctx)
	}
}

func (m *Monitor) startElection(ctx context.Context) {
	if err := m.election.StartElection(ctx); err != nil {
		m.logger.Error("failed to start election", logging.Error(err))
	}
}

func (m *Monitor) recordProbe(serverID string, online bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if online {
		delete(m.failures, serverID)
		return 0
	}
	m.failures[serverID]++
	return m.failures[serverID]
}

func (m *Monitor) resetFailures(serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, serverID)
}

// FailureCount returns the consecutive failed probes recorded for serverID
func (m *Monitor) FailureCount(serverID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[serverID]
}
