package cluster

import (
	"context"
	"testing"
	"time"
)

func monitorConfig() Config {
	cfg := DefaultConfig()
	cfg.ServerID = "m"
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.ProbeTimeout = 50 * time.Millisecond
	cfg.FailureThreshold = 2
	return cfg
}

// TestMonitorStartsElectionWithoutCoordinator tests detection of a missing coordinator
func TestMonitorStartsElectionWithoutCoordinator(t *testing.T) {
	s := newTestState(t, "m", "a")
	tc := newTestCoordinator(t, s)
	m := NewMonitor(tc.ElectionCoordinator, nil, monitorConfig(), nil)

	m.Check(context.Background())

	if coordinatorID(s) != "m" {
		t.Errorf("Expected m to elect itself, got %q", coordinatorID(s))
	}
}

// TestMonitorFailureThreshold tests that an election starts only after consecutive failures
func TestMonitorFailureThreshold(t *testing.T) {
	prober := &staticProber{online: map[string]bool{"x": false}}
	s := newTestState(t, "m", "x")
	s.AcceptCoordinator(server("x"))
	tc := newTestCoordinator(t, s)
	m := NewMonitor(tc.ElectionCoordinator, prober, monitorConfig(), nil)
	ctx := context.Background()

	m.Check(ctx)
	if m.FailureCount("x") != 1 {
		t.Errorf("Expected 1 failure, got %d", m.FailureCount("x"))
	}
	if s.OngoingElection() {
		t.Error("Election started before threshold")
	}

	m.Check(ctx)
	if !s.OngoingElection() {
		t.Error("Election should start at threshold")
	}
	if m.FailureCount("x") != 0 {
		t.Errorf("Failures should reset after starting election, got %d", m.FailureCount("x"))
	}
	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 1 || got[0] != "x" {
		t.Errorf("Expected START_ELECTION to x, got %v", got)
	}

	// No second election while one is running
	m.Check(ctx)
	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 1 {
		t.Errorf("Check must not interrupt a running election, got %v", got)
	}
}

// TestMonitorHealthyCoordinator tests that a successful probe clears failures
func TestMonitorHealthyCoordinator(t *testing.T) {
	prober := &staticProber{online: map[string]bool{"x": false}}
	s := newTestState(t, "m", "x")
	s.AcceptCoordinator(server("x"))
	tc := newTestCoordinator(t, s)
	m := NewMonitor(tc.ElectionCoordinator, prober, monitorConfig(), nil)
	ctx := context.Background()

	m.Check(ctx)
	prober.mu.Lock()
	prober.online["x"] = true
	prober.mu.Unlock()
	m.Check(ctx)

	if m.FailureCount("x") != 0 {
		t.Errorf("Expected failures cleared, got %d", m.FailureCount("x"))
	}
	if s.OngoingElection() {
		t.Error("Healthy coordinator must not trigger an election")
	}
}

// TestMonitorSelfCoordinator tests that the coordinator never probes itself
func TestMonitorSelfCoordinator(t *testing.T) {
	prober := &staticProber{online: map[string]bool{}}
	s := newTestState(t, "m")
	s.AcceptCoordinator(server("m"))
	tc := newTestCoordinator(t, s)
	m := NewMonitor(tc.ElectionCoordinator, prober, monitorConfig(), nil)

	m.Check(context.Background())
	if prober.calls != 0 {
		t.Errorf("Coordinator probed itself %d times", prober.calls)
	}
}

// TestMonitorLoop tests the background loop end to end
func TestMonitorLoop(t *testing.T) {
	s := newTestState(t, "m", "a")
	tc := newTestCoordinator(t, s)
	m := NewMonitor(tc.ElectionCoordinator, nil, monitorConfig(), nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	eventually(t, time.Second, func() bool { return coordinatorID(s) == "m" }, "monitor-driven election")
}

// TestMonitorDisabled tests that auto-failover off keeps the monitor idle
func TestMonitorDisabled(t *testing.T) {
	s := newTestState(t, "m", "a")
	tc := newTestCoordinator(t, s)
	cfg := monitorConfig()
	cfg.EnableAutoFailover = false
	m := NewMonitor(tc.ElectionCoordinator, nil, cfg, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	m.Stop()

	if _, ok := s.Coordinator(); ok {
		t.Error("Disabled monitor started an election")
	}
}
