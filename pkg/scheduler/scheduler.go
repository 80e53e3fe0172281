// Package scheduler runs cancellable delayed actions keyed by (group, phase).
//
// At most one action may be pending per key. An action that has started
// running is no longer pending, so it may schedule its own key again; Cancel
// still reaches it through its context, and actions are expected to check
// ctx.Err() immediately before any side effect.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
)

var (
	// ErrAlreadyScheduled is returned when a key already has a pending action
	ErrAlreadyScheduled = errors.New("action already scheduled for group and phase")

	// ErrSchedulerClosed is returned by Schedule after Close
	ErrSchedulerClosed = errors.New("scheduler is closed")
)

// Action is the body of a scheduled task. ctx is cancelled when the task is
// cancelled or the scheduler closes.
type Action func(ctx context.Context)

// Key identifies a scheduled action
type Key struct {
	Group string
	Phase string
}

func (k Key) String() string {
	return k.Group + "/" + k.Phase
}

const (
	statePending int32 = iota
	stateRunning
	stateCancelled
	stateDone
)

// Handle tracks a single scheduled action
type Handle struct {
	key       Key
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *time.Timer
	state     atomic.Int32
	cancelled atomic.Bool // set only by Cancel and Close
	done      chan struct{}
}

// Key returns the (group, phase) the action was scheduled under
func (h *Handle) Key() Key { return h.key }

// Done is closed once the action has finished or was cancelled before running
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancelled reports whether the action was cancelled, before or during its run
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load() || h.state.Load() == stateCancelled
}

// abort marks h cancelled and cancels its context. It reports whether h was
// not already cancelled.
func (h *Handle) abort() bool {
	first := h.cancelled.CompareAndSwap(false, true)
	h.cancel()
	return first
}

// Ran reports whether the action body was started
func (h *Handle) Ran() bool {
	s := h.state.Load()
	return s == stateRunning || s == stateDone
}

// TimeoutScheduler schedules at most one pending action per key
type TimeoutScheduler struct {
	mu      sync.Mutex
	pending map[Key]*Handle
	running map[*Handle]struct{}
	closed  bool
	wg      sync.WaitGroup

	logger          logging.Logger
	metricsRegistry *metrics.Registry
}

// Option configures a TimeoutScheduler
type Option func(*TimeoutScheduler)

// WithLogger sets the scheduler logger
func WithLogger(l logging.Logger) Option {
	return func(s *TimeoutScheduler) { s.logger = l }
}

// WithMetrics sets the registry timeout events are recorded on
func WithMetrics(r *metrics.Registry) Option {
	return func(s *TimeoutScheduler) { s.metricsRegistry = r }
}

// New creates a TimeoutScheduler
func New(opts ...Option) *TimeoutScheduler {
	s := &TimeoutScheduler{
		pending:         make(map[Key]*Handle),
		running:         make(map[*Handle]struct{}),
		logger:          logging.NewNopLogger(),
		metricsRegistry: metrics.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("scheduler"))
	return s
}

// Schedule runs action once after delay unless cancelled first
func (s *TimeoutScheduler) Schedule(group, phase string, delay time.Duration, action Action) (*Handle, error) {
	key := Key{Group: group, Phase: phase}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}
	if _, exists := s.pending[key]; exists {
		return nil, ErrAlreadyScheduled
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		key:    key,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.pending[key] = h
	s.wg.Add(1)
	h.timer = time.AfterFunc(delay, func() { s.fire(h, action) })

	s.record(phase, metrics.OutcomeScheduled)
	s.logger.Debug("timeout scheduled",
		logging.Group(group),
		logging.Phase(phase),
		logging.Duration("delay", delay))

	return h, nil
}

func (s *TimeoutScheduler) fire(h *Handle, action Action) {
	s.mu.Lock()
	if !h.state.CompareAndSwap(statePending, stateRunning) {
		// Cancel won the race and owns the bookkeeping
		s.mu.Unlock()
		return
	}
	if s.pending[h.key] == h {
		delete(s.pending, h.key)
	}
	s.running[h] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, h)
		s.mu.Unlock()
		h.state.Store(stateDone)
		h.cancel() // releases the context only; Cancelled stays false
		close(h.done)
		s.wg.Done()
	}()

	s.record(h.key.Phase, metrics.OutcomeFired)
	s.logger.Debug("timeout fired", logging.Group(h.key.Group), logging.Phase(h.key.Phase))

	action(h.ctx)
}

// Cancel stops the pending action for (group, phase) and signals any running
// action for the same key. It reports whether anything was cancelled.
func (s *TimeoutScheduler) Cancel(group, phase string) bool {
	key := Key{Group: group, Phase: phase}

	s.mu.Lock()
	h := s.pending[key]
	if h != nil {
		delete(s.pending, key)
	}
	var active []*Handle
	for r := range s.running {
		if r.key == key {
			active = append(active, r)
		}
	}
	s.mu.Unlock()

	cancelled := false
	if h != nil {
		// If fire already claimed h, its context is cancelled before the action runs
		s.cancelPending(h)
		cancelled = true
	}
	for _, r := range active {
		if r.abort() {
			cancelled = true
		}
	}

	if cancelled {
		s.record(phase, metrics.OutcomeCancelled)
		s.logger.Debug("timeout cancelled", logging.Group(group), logging.Phase(phase))
	}
	return cancelled
}

// cancelPending finishes a handle that never ran
func (s *TimeoutScheduler) cancelPending(h *Handle) bool {
	h.abort()
	if !h.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	h.timer.Stop()
	close(h.done)
	s.wg.Done()
	return true
}

// CancelGroup cancels every phase of group
func (s *TimeoutScheduler) CancelGroup(group string) int {
	s.mu.Lock()
	phases := make(map[string]struct{})
	for k := range s.pending {
		if k.Group == group {
			phases[k.Phase] = struct{}{}
		}
	}
	for r := range s.running {
		if r.key.Group == group {
			phases[r.key.Phase] = struct{}{}
		}
	}
	s.mu.Unlock()

	n := 0
	for phase := range phases {
		if s.Cancel(group, phase) {
			n++
		}
	}
	return n
}

// Pending reports whether an action is waiting to fire for (group, phase)
func (s *TimeoutScheduler) Pending(group, phase string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[Key{Group: group, Phase: phase}]
	return ok
}

// Len returns the number of pending actions
func (s *TimeoutScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels everything and waits for running actions to return
func (s *TimeoutScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := make([]*Handle, 0, len(s.pending))
	for k, h := range s.pending {
		pending = append(pending, h)
		delete(s.pending, k)
	}
	for r := range s.running {
		r.abort()
	}
	s.mu.Unlock()

	for _, h := range pending {
		s.cancelPending(h)
	}
	s.wg.Wait()
}

func (s *TimeoutScheduler) record(phase, outcome string) {
	if s.metricsRegistry != nil {
		s.metricsRegistry.RecordTimeout(phase, outcome)
	}
}
