package cluster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/strikechat/strike-server/pkg/metrics"
	"github.com/strikechat/strike-server/pkg/scheduler"
)

// collectEvents subscribes to election events and returns a func reporting the types seen so far
func collectEvents(t *testing.T, tc *testCoordinator) func() []EventType {
	t.Helper()
	sub, err := tc.events.Subscribe(context.Background(), EventsTopic)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var mu sync.Mutex
	var seen []EventType
	go func() {
		for ev := range sub.Channel() {
			mu.Lock()
			seen = append(seen, ev.Type)
			mu.Unlock()
		}
	}()

	return func() []EventType {
		mu.Lock()
		defer mu.Unlock()
		return append([]EventType(nil), seen...)
	}
}

func countEvents(events []EventType, want EventType) int {
	n := 0
	for _, e := range events {
		if e == want {
			n++
		}
	}
	return n
}

// TestStartElectionMostSenior tests the fast path when no candidate exists
func TestStartElectionMostSenior(t *testing.T) {
	s := newTestState(t, "z", "a", "b")
	tc := newTestCoordinator(t, s)
	events := collectEvents(t, tc)

	if err := tc.StartElection(context.Background()); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}

	if coordinatorID(s) != "z" || !tc.IsCoordinator() {
		t.Errorf("Expected z to be coordinator, got %q", coordinatorID(s))
	}
	if s.OngoingElection() {
		t.Error("Election should be finished")
	}
	if got := tc.messenger.sentOf(MsgSetCoordinator); len(got) != 2 {
		t.Errorf("Expected SET_COORDINATOR to both subordinates, got %v", got)
	}
	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 0 {
		t.Errorf("No START_ELECTION expected, got %v", got)
	}
	if tc.scheduler.Len() != 0 {
		t.Errorf("No timeouts expected, got %d", tc.scheduler.Len())
	}

	eventually(t, time.Second, func() bool {
		return countEvents(events(), EventCoordinatorChanged) == 1
	}, "coordinator_changed event")
}

// TestStartElectionSelfUnknown tests that an election needs a local identity
func TestStartElectionSelfUnknown(t *testing.T) {
	s := NewClusterStateWithMetrics(DefaultConfig(), nil)
	tc := newTestCoordinator(t, s)

	if err := tc.StartElection(context.Background()); !errors.Is(err, ErrSelfUnknown) {
		t.Errorf("Expected ErrSelfUnknown, got %v", err)
	}
}

// TestAnswerTimeoutSelfElects tests self-election when no senior peer answers
func TestAnswerTimeoutSelfElects(t *testing.T) {
	s := newTestState(t, "m", "a", "x", "y")
	tc := newTestCoordinator(t, s)

	if err := tc.StartElection(context.Background()); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}

	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 2 {
		t.Errorf("Expected START_ELECTION to x and y, got %v", got)
	}
	if !tc.scheduler.Pending(electionGroup("m"), PhaseAnswer) {
		t.Error("Answer timeout should be pending")
	}
	if s.Phase() != PhaseElectionInProgress {
		t.Errorf("Expected phase %v, got %v", PhaseElectionInProgress, s.Phase())
	}

	eventually(t, time.Second, func() bool { return coordinatorID(s) == "m" }, "self-election after answer timeout")

	if got := tc.messenger.sentOf(MsgSetCoordinator); len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected SET_COORDINATOR to a only, got %v", got)
	}
	if s.OngoingElection() {
		t.Error("Election should be finished")
	}
}

// TestUnreachableCandidatesStillTimeout tests that send failures leave the timeout in charge
func TestUnreachableCandidatesStillTimeout(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)
	tc.messenger.setUnreachable("x")

	if err := tc.StartElection(context.Background()); err != nil {
		t.Fatalf("StartElection should not fail on delivery errors: %v", err)
	}

	eventually(t, time.Second, func() bool { return coordinatorID(s) == "m" }, "self-election")
}

// TestAnswerThenAnnouncement tests the deferring path of an election
func TestAnswerThenAnnouncement(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)
	events := collectEvents(t, tc)
	ctx := context.Background()
	group := electionGroup("m")

	if err := tc.StartElection(ctx); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}
	if err := tc.HandleMessage(ctx, NewMessage(MsgElectionAnswer, server("x"))); err != nil {
		t.Fatalf("HandleMessage(answer) failed: %v", err)
	}

	if tc.scheduler.Pending(group, PhaseAnswer) {
		t.Error("Answer timeout should be cancelled")
	}
	if !tc.scheduler.Pending(group, PhaseCoordinator) {
		t.Error("Coordinator timeout should be pending")
	}
	if s.Phase() != PhaseWaitingForCoordinator {
		t.Errorf("Expected phase %v, got %v", PhaseWaitingForCoordinator, s.Phase())
	}

	// A second answer is ignored
	if err := tc.HandleMessage(ctx, NewMessage(MsgElectionAnswer, server("x"))); err != nil {
		t.Errorf("Second answer returned error: %v", err)
	}

	if err := tc.HandleMessage(ctx, NewMessage(MsgSetCoordinator, server("x"))); err != nil {
		t.Fatalf("HandleMessage(set coordinator) failed: %v", err)
	}
	if coordinatorID(s) != "x" || s.OngoingElection() {
		t.Errorf("Expected steady with coordinator x, got %q ongoing=%v", coordinatorID(s), s.OngoingElection())
	}
	if tc.scheduler.Len() != 0 {
		t.Errorf("All timeouts should be cancelled, %d pending", tc.scheduler.Len())
	}

	// Nothing fires later and overrides the announcement
	time.Sleep(3 * s.CoordinatorAnnounceTimeout() / 2)
	if coordinatorID(s) != "x" {
		t.Errorf("Coordinator changed to %q after announcement", coordinatorID(s))
	}
	if got := events(); countEvents(got, EventElectionStopped) != 1 {
		t.Errorf("Expected one election_stopped event, got %v", got)
	}
}

// TestAnswerWithoutElection tests that a stray answer is ignored
func TestAnswerWithoutElection(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)

	if err := tc.HandleMessage(context.Background(), NewMessage(MsgElectionAnswer, server("x"))); err != nil {
		t.Errorf("Stray answer returned error: %v", err)
	}
	if tc.scheduler.Len() != 0 || s.AnswerReceived() {
		t.Error("Stray answer must not change state")
	}
}

// TestCoordinatorTimeoutRetries tests that a silent senior peer causes a new election
func TestCoordinatorTimeoutRetries(t *testing.T) {
	s := newTestState(t, "m", "x", "y")
	tc := newTestCoordinator(t, s)
	ctx := context.Background()

	if err := tc.StartElection(ctx); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}
	if err := tc.HandleElectionAnswer(ctx, NewMessage(MsgElectionAnswer, server("y"))); err != nil {
		t.Fatalf("HandleElectionAnswer failed: %v", err)
	}

	// The retry challenges both candidates again, then nobody answers
	eventually(t, 2*time.Second, func() bool {
		return len(tc.messenger.sentOf(MsgStartElection)) == 4
	}, "START_ELECTION resent on retry")
	eventually(t, 2*time.Second, func() bool { return coordinatorID(s) == "m" }, "self-election after retry")

	if tc.Retries() != 0 {
		t.Errorf("Retries should reset on accept, got %d", tc.Retries())
	}
}

// TestRetryProbesCandidates tests that retries skip candidates failing the probe
func TestRetryProbesCandidates(t *testing.T) {
	prober := &staticProber{online: map[string]bool{}}
	s := newTestState(t, "m", "x", "y")
	tc := newTestCoordinator(t, s, WithProber(prober))
	ctx := context.Background()

	if err := tc.StartElection(ctx); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}
	if err := tc.HandleElectionAnswer(ctx, NewMessage(MsgElectionAnswer, server("y"))); err != nil {
		t.Fatalf("HandleElectionAnswer failed: %v", err)
	}

	eventually(t, 2*time.Second, func() bool { return coordinatorID(s) == "m" }, "self-election when every candidate is offline")

	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 2 {
		t.Errorf("Offline candidates should not be challenged again, got %v", got)
	}
	prober.mu.Lock()
	calls := prober.calls
	prober.mu.Unlock()
	if calls != 2 {
		t.Errorf("Expected 2 probes, got %d", calls)
	}
}

// TestRetryProbeKeepsLiveCandidates tests that live candidates are challenged again
func TestRetryProbeKeepsLiveCandidates(t *testing.T) {
	prober := &staticProber{online: map[string]bool{"y": true}}
	s := newTestState(t, "m", "x", "y")
	tc := newTestCoordinator(t, s, WithProber(prober))

	// Pretend one announcement timeout already happened
	tc.retries.Store(1)
	if err := tc.StartElection(context.Background()); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}

	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 1 || got[0] != "y" {
		t.Errorf("Expected START_ELECTION to y only, got %v", got)
	}
}

// TestRetryLimitWithoutProber tests that retries end in self-election without a prober
func TestRetryLimitWithoutProber(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)
	tc.config.MaxElectionRetries = 0
	ctx := context.Background()

	if err := tc.StartElection(ctx); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}
	if err := tc.HandleElectionAnswer(ctx, NewMessage(MsgElectionAnswer, server("x"))); err != nil {
		t.Fatalf("HandleElectionAnswer failed: %v", err)
	}

	eventually(t, 2*time.Second, func() bool { return coordinatorID(s) == "m" }, "self-election after retry limit")
	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 1 {
		t.Errorf("Expected no further START_ELECTION, got %v", got)
	}
}

// TestHandleStartElectionFromJunior tests answering and starting our own election
func TestHandleStartElectionFromJunior(t *testing.T) {
	s := newTestState(t, "m", "a", "x")
	tc := newTestCoordinator(t, s)
	ctx := context.Background()

	if err := tc.HandleMessage(ctx, NewMessage(MsgStartElection, server("a"))); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if got := tc.messenger.sentOf(MsgElectionAnswer); len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected ELECTION_ANSWER to a, got %v", got)
	}
	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 1 || got[0] != "x" {
		t.Errorf("Expected START_ELECTION to x, got %v", got)
	}
	if !s.OngoingElection() {
		t.Error("Own election should be running")
	}

	// A repeated challenge is answered but does not restart the election
	if err := tc.HandleMessage(ctx, NewMessage(MsgStartElection, server("a"))); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if got := tc.messenger.sentOf(MsgElectionAnswer); len(got) != 2 {
		t.Errorf("Expected 2 answers, got %v", got)
	}
	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 1 {
		t.Errorf("Election restarted: %v", got)
	}
}

// TestHandleStartElectionUnknownJunior tests that an unknown junior peer joins membership
func TestHandleStartElectionUnknownJunior(t *testing.T) {
	s := newTestState(t, "m")
	tc := newTestCoordinator(t, s)

	if err := tc.HandleMessage(context.Background(), NewMessage(MsgStartElection, server("b"))); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	if !s.IsSubordinate("b") {
		t.Error("Unknown junior sender should be added as subordinate")
	}
	// With no candidates m wins immediately and tells b
	if coordinatorID(s) != "m" {
		t.Errorf("Expected m to be coordinator, got %q", coordinatorID(s))
	}
	if got := tc.messenger.sentOf(MsgSetCoordinator); len(got) != 1 || got[0] != "b" {
		t.Errorf("Expected SET_COORDINATOR to b, got %v", got)
	}
}

// TestHandleStartElectionFromSenior tests that a senior challenger is ignored
func TestHandleStartElectionFromSenior(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)

	if err := tc.HandleMessage(context.Background(), NewMessage(MsgStartElection, server("x"))); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if got := tc.messenger.sentOf(MsgElectionAnswer); len(got) != 0 {
		t.Errorf("Senior challenger should not be answered, got %v", got)
	}
	if s.OngoingElection() {
		t.Error("No election should start")
	}
}

// TestHandleMessageRejects tests rejection of self-sent and unknown messages
func TestHandleMessageRejects(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)
	ctx := context.Background()

	if err := tc.HandleMessage(ctx, NewMessage(MsgStartElection, server("m"))); !errors.Is(err, ErrMessageFromSelf) {
		t.Errorf("Expected ErrMessageFromSelf, got %v", err)
	}

	msg := NewMessage(MsgStartElection, server("x"))
	msg.Type = "GOSSIP"
	if err := tc.HandleMessage(ctx, msg); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Expected ErrUnknownMessage, got %v", err)
	}
}

// TestSetCoordinatorDuringElection tests that an announcement supersedes local progress
func TestSetCoordinatorDuringElection(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)

	if err := tc.StartElection(context.Background()); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}
	tc.HandleSetCoordinator(NewMessage(MsgSetCoordinator, server("x")))

	if tc.scheduler.Len() != 0 {
		t.Errorf("Expected no pending timeouts, got %d", tc.scheduler.Len())
	}

	time.Sleep(2 * s.AnswerTimeout())
	if coordinatorID(s) != "x" {
		t.Errorf("Answer timeout overrode announcement: coordinator %q", coordinatorID(s))
	}
}

// TestSetCoordinatorFromJunior tests that announcements are accepted unconditionally
func TestSetCoordinatorFromJunior(t *testing.T) {
	s := newTestState(t, "m", "a")
	tc := newTestCoordinator(t, s)

	tc.HandleSetCoordinator(NewMessage(MsgSetCoordinator, server("a")))
	if coordinatorID(s) != "a" {
		t.Errorf("Expected coordinator a, got %q", coordinatorID(s))
	}
}

// TestAcceptNewCoordinatorIdempotent tests that repeated accepts publish once
func TestAcceptNewCoordinatorIdempotent(t *testing.T) {
	s := newTestState(t, "m")
	tc := newTestCoordinator(t, s)
	events := collectEvents(t, tc)

	if !tc.AcceptNewCoordinator(server("q")) {
		t.Error("First accept should change the coordinator")
	}
	if tc.AcceptNewCoordinator(server("q")) {
		t.Error("Second accept should be a no-op")
	}

	if !s.IsCandidate("q") {
		t.Error("Unknown coordinator should join membership")
	}

	time.Sleep(50 * time.Millisecond)
	if got := countEvents(events(), EventCoordinatorChanged); got != 1 {
		t.Errorf("Expected 1 coordinator_changed event, got %d", got)
	}
}

// TestScheduleFailureAbortsElection tests that an election does not hang when timeouts cannot be scheduled
func TestScheduleFailureAbortsElection(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)
	tc.scheduler.Close()

	err := tc.StartElection(context.Background())
	if !errors.Is(err, ErrScheduleFailed) {
		t.Errorf("Expected ErrScheduleFailed, got %v", err)
	}
	if s.OngoingElection() {
		t.Error("Aborted election should not stay in progress")
	}
	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 0 {
		t.Errorf("No START_ELECTION expected after abort, got %v", got)
	}
}

// TestStartElectionSupersedes tests that a new election replaces the pending timeouts
func TestStartElectionSupersedes(t *testing.T) {
	s := newTestState(t, "m", "x")
	tc := newTestCoordinator(t, s)
	ctx := context.Background()

	if err := tc.StartElection(ctx); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}
	if err := tc.StartElection(ctx); err != nil {
		t.Fatalf("Second StartElection failed: %v", err)
	}
	if tc.scheduler.Len() != 1 {
		t.Errorf("Expected exactly one pending timeout, got %d", tc.scheduler.Len())
	}
}

// TestAnswerTimeoutCancellationRace tests that a timeout racing with an answer sets up at most one coordinator
func TestAnswerTimeoutCancellationRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := newTestState(t, "m", "a", "x")
		s.SetTimeouts(time.Millisecond, time.Second)
		tc := newTestCoordinator(t, s)
		ctx := context.Background()

		if err := tc.StartElection(ctx); err != nil {
			t.Fatalf("StartElection failed: %v", err)
		}
		time.Sleep(time.Millisecond)
		if err := tc.HandleElectionAnswer(ctx, NewMessage(MsgElectionAnswer, server("x"))); err != nil {
			t.Fatalf("HandleElectionAnswer failed: %v", err)
		}

		time.Sleep(10 * time.Millisecond)

		if got := tc.messenger.sentOf(MsgSetCoordinator); len(got) > 1 {
			t.Fatalf("iteration %d: coordinator set up %d times", i, len(got))
		}
		// Either the timeout won and m leads, or the answer won and m waits for x
		waiting := tc.scheduler.Pending(electionGroup("m"), PhaseCoordinator)
		if coordinatorID(s) != "m" && !waiting {
			t.Fatalf("iteration %d: election stalled with no coordinator and no pending timeout", i)
		}
		tc.scheduler.Close()
	}
}

// TestCoordinatorTimeoutAfterAnnouncement tests that a coordinator timeout
// stands down once an announcement has been seen
func TestCoordinatorTimeoutAfterAnnouncement(t *testing.T) {
	s := newTestState(t, "m", "x", "y")
	tc := newTestCoordinator(t, s)
	ctx := context.Background()

	if err := tc.StartElection(ctx); err != nil {
		t.Fatalf("StartElection failed: %v", err)
	}
	if err := tc.HandleElectionAnswer(ctx, NewMessage(MsgElectionAnswer, server("y"))); err != nil {
		t.Fatalf("HandleElectionAnswer failed: %v", err)
	}
	tc.scheduler.CancelGroup(electionGroup("m"))

	s.SetCoordinatorAnnounced(true)
	tc.onCoordinatorTimeout(ctx)

	if tc.Retries() != 0 {
		t.Errorf("Timeout retried after announcement, retries=%d", tc.Retries())
	}
	if got := tc.messenger.sentOf(MsgStartElection); len(got) != 2 {
		t.Errorf("No new START_ELECTION expected, got %v", got)
	}
}

// cancellingMessenger cancels the setup context as soon as the first message goes out
type cancellingMessenger struct {
	*recordingMessenger
	cancel context.CancelFunc
}

func (m *cancellingMessenger) SendToMany(ctx context.Context, peers []ServerInfo, msg Message) error {
	var errs []error
	for _, p := range peers {
		m.cancel()
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.SendToOne(ctx, p, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TestSetupNewCoordinatorCancelled tests that a cancelled setup neither
// announces nor accepts, and a cancel during the announcement does not split them
func TestSetupNewCoordinatorCancelled(t *testing.T) {
	s := newTestState(t, "m", "a", "b")
	tc := newTestCoordinator(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tc.SetupNewCoordinator(ctx, server("m")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if got := tc.messenger.sentOf(MsgSetCoordinator); len(got) != 0 {
		t.Errorf("Cancelled setup announced to %v", got)
	}
	if coordinatorID(s) != "" {
		t.Errorf("Cancelled setup installed coordinator %q", coordinatorID(s))
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	messenger := &cancellingMessenger{recordingMessenger: newRecordingMessenger(), cancel: cancel}
	sched := scheduler.New(scheduler.WithMetrics(metrics.NewRegistry()))
	defer sched.Close()
	cfg := DefaultConfig()
	cfg.ServerID = "m"
	ec := NewElectionCoordinator(s, sched, messenger, cfg)

	if err := ec.SetupNewCoordinator(ctx, server("m")); err != nil {
		t.Fatalf("SetupNewCoordinator failed: %v", err)
	}
	if got := messenger.sentOf(MsgSetCoordinator); len(got) != 2 {
		t.Errorf("Expected SET_COORDINATOR to a and b, got %v", got)
	}
	if coordinatorID(s) != "m" {
		t.Errorf("Expected coordinator m after announcing, got %q", coordinatorID(s))
	}
}
