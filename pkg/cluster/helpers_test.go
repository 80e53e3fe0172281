package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/strikechat/strike-server/pkg/metrics"
	"github.com/strikechat/strike-server/pkg/pubsub"
	"github.com/strikechat/strike-server/pkg/scheduler"
)

func server(id string) ServerInfo {
	return ServerInfo{ServerID: id, Address: "127.0.0.1", ClientPort: 4000, ManagementPort: 5000}
}

type sentMessage struct {
	To  string
	Msg Message
}

// recordingMessenger records every send and fails sends to unreachable peers
type recordingMessenger struct {
	mu          sync.Mutex
	sent        []sentMessage
	unreachable map[string]bool
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{unreachable: make(map[string]bool)}
}

func (m *recordingMessenger) SendToOne(ctx context.Context, peer ServerInfo, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable[peer.ServerID] {
		return fmt.Errorf("peer %s unreachable", peer.ServerID)
	}
	m.sent = append(m.sent, sentMessage{To: peer.ServerID, Msg: msg})
	return nil
}

func (m *recordingMessenger) SendToMany(ctx context.Context, peers []ServerInfo, msg Message) error {
	var errs []error
	for _, p := range peers {
		if err := m.SendToOne(ctx, p, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *recordingMessenger) setUnreachable(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable[id] = true
}

// sentOf returns the recipients of every message of type t
func (m *recordingMessenger) sentOf(t MessageType) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var to []string
	for _, s := range m.sent {
		if s.Msg.Type == t {
			to = append(to, s.To)
		}
	}
	return to
}

type staticProber struct {
	mu     sync.Mutex
	online map[string]bool
	calls  int
}

func (p *staticProber) Probe(ctx context.Context, peer ServerInfo) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.online[peer.ServerID]
}

// newTestState builds a state with the given ids as members and self selected
func newTestState(t *testing.T, self string, ids ...string) *ClusterState {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AnswerTimeout = 50 * time.Millisecond
	cfg.CoordinatorAnnounceTimeout = 100 * time.Millisecond

	s := NewClusterStateWithMetrics(cfg, metrics.NewRegistry())
	for _, id := range append([]string{self}, ids...) {
		if err := s.AddMember(server(id)); err != nil {
			t.Fatalf("AddMember(%s): %v", id, err)
		}
	}
	if err := s.InitSelf(self); err != nil {
		t.Fatalf("InitSelf(%s): %v", self, err)
	}
	return s
}

type testCoordinator struct {
	*ElectionCoordinator
	messenger *recordingMessenger
	scheduler *scheduler.TimeoutScheduler
	events    *pubsub.PubSub[Event]
}

func newTestCoordinator(t *testing.T, state *ClusterState, opts ...CoordinatorOption) *testCoordinator {
	t.Helper()
	reg := metrics.NewRegistry()
	sched := scheduler.New(scheduler.WithMetrics(reg))
	events := pubsub.NewPubSub[Event]()
	messenger := newRecordingMessenger()

	cfg := DefaultConfig()
	cfg.ServerID = "test"
	cfg.ProbeTimeout = 100 * time.Millisecond

	opts = append([]CoordinatorOption{WithMetrics(reg), WithEvents(events)}, opts...)
	ec := NewElectionCoordinator(state, sched, messenger, cfg, opts...)

	t.Cleanup(func() {
		sched.Close()
		events.Shutdown()
	})
	return &testCoordinator{ElectionCoordinator: ec, messenger: messenger, scheduler: sched, events: events}
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func coordinatorID(s *ClusterState) string {
	c, ok := s.Coordinator()
	if !ok {
		return ""
	}
	return c.ServerID
}
