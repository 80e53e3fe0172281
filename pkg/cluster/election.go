package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
	"github.com/strikechat/strike-server/pkg/validation"
)

const (
	defaultProbeTimeout = 5 * time.Second
	maxParallelProbes   = 8
)

// StartElection begins a new election, superseding any election in progress
func (e *ElectionCoordinator) StartElection(ctx context.Context) error {
	if _, ok := e.state.Self(); !ok {
		return ErrSelfUnknown
	}
	e.state.BeginElection()
	return e.runElection(ctx)
}

// startElectionIfIdle begins an election unless one is already running
func (e *ElectionCoordinator) startElectionIfIdle(ctx context.Context) (bool, error) {
	if _, ok := e.state.Self(); !ok {
		return false, ErrSelfUnknown
	}
	if !e.state.TryBeginElection() {
		return false, nil
	}
	return true, e.runElection(ctx)
}

// runElection challenges the senior candidates. The election flag must already be set.
func (e *ElectionCoordinator) runElection(ctx context.Context) error {
	self, _ := e.state.Self()
	group := electionGroup(self.ServerID)

	// Timeouts of a superseded attempt must not act on this one
	e.scheduler.CancelGroup(group)

	attempt := e.Retries()
	e.publish(Event{Type: EventElectionStarted, ServerID: self.ServerID, Attempt: attempt})

	candidates := e.candidatesFor(ctx, attempt)
	if len(candidates) == 0 {
		e.logger.Info("no senior candidates, becoming coordinator", logging.Attempt(attempt))
		e.recordElection(metrics.ResultWon)
		return e.SetupNewCoordinator(ctx, self)
	}

	// Schedule before sending so an early answer always finds the timeout
	if _, err := e.scheduler.Schedule(group, PhaseAnswer, e.state.AnswerTimeout(), e.onAnswerTimeout); err != nil {
		e.state.SetOngoingElection(false)
		e.recordElection(metrics.ResultAborted)
		e.logger.Error("election aborted", logging.Error(err))
		return fmt.Errorf("%w: %w", ErrScheduleFailed, err)
	}

	e.logger.Info("election started",
		logging.Count(len(candidates)),
		logging.Attempt(attempt))

	msg := NewMessage(MsgStartElection, self)
	if err := e.messenger.SendToMany(ctx, candidates, msg); err != nil {
		e.logger.Warn("START_ELECTION not delivered to every candidate", logging.Error(err))
	}
	return nil
}

// candidatesFor returns the senior peers to challenge on the given attempt.
// The first attempt uses every known candidate; retries keep only those that
// pass the liveness probe.
func (e *ElectionCoordinator) candidatesFor(ctx context.Context, attempt int) []ServerInfo {
	candidates := e.state.Candidates()
	if attempt == 0 || len(candidates) == 0 {
		return candidates
	}

	if e.prober == nil {
		if attempt > e.config.MaxElectionRetries {
			e.logger.Warn("election retry limit reached, ignoring unresponsive candidates",
				logging.Attempt(attempt),
				logging.Count(len(candidates)))
			return nil
		}
		return candidates
	}

	return e.liveCandidates(ctx)
}

// liveCandidates walks the senior ring in priority order and probes each
// candidate in parallel
func (e *ElectionCoordinator) liveCandidates(ctx context.Context) []ServerInfo {
	var ring []ServerInfo
	for next, ok := e.state.NextCandidateAtOrAfter(""); ok; next, ok = e.state.NextCandidateAtOrAfter(next.ServerID + "\x00") {
		ring = append(ring, next)
	}

	timeout := validation.DefaultOrDuration(e.config.ProbeTimeout, defaultProbeTimeout)
	alive := make([]bool, len(ring))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)
	for i, peer := range ring {
		i, peer := i, peer
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			alive[i] = e.prober.Probe(pctx, peer)
			return nil
		})
	}
	_ = g.Wait()

	live := make([]ServerInfo, 0, len(ring))
	for i, peer := range ring {
		if alive[i] {
			live = append(live, peer)
		} else {
			e.logger.Debug("candidate offline", logging.Peer(peer.ServerID))
		}
	}
	return live
}

// onAnswerTimeout runs when no senior candidate answered in time
func (e *ElectionCoordinator) onAnswerTimeout(ctx context.Context) {
	if ctx.Err() != nil || !e.state.OngoingElection() || e.state.AnswerReceived() {
		return
	}

	self, _ := e.state.Self()
	e.logger.Info("no answer from senior candidates, becoming coordinator")
	e.recordElection(metrics.ResultWon)

	if err := e.SetupNewCoordinator(ctx, self); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("failed to set up coordinator", logging.Error(err))
	}
}

// onCoordinatorTimeout runs when a senior peer answered but never announced
// itself. The election is retried.
func (e *ElectionCoordinator) onCoordinatorTimeout(ctx context.Context) {
	if ctx.Err() != nil || !e.state.OngoingElection() || e.state.CoordinatorAnnounced() {
		return
	}

	attempt := e.retries.Add(1)
	e.recordElection(metrics.ResultRetried)
	e.logger.Warn("no coordinator announcement, retrying election", logging.Attempt(int(attempt)))

	if err := e.StartElection(context.Background()); err != nil {
		e.logger.Error("election retry failed", logging.Error(err))
	}
}

// SetupNewCoordinator announces c to every subordinate and then accepts it
// locally. Delivery failures are logged only. Once the announcement starts
// both steps complete; a ctx cancelled before then does neither.
func (e *ElectionCoordinator) SetupNewCoordinator(ctx context.Context, c ServerInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subordinates := e.state.Subordinates()
	if len(subordinates) > 0 {
		msg := NewMessage(MsgSetCoordinator, c)
		if err := e.messenger.SendToMany(context.WithoutCancel(ctx), subordinates, msg); err != nil {
			e.logger.Warn("SET_COORDINATOR not delivered to every subordinate", logging.Error(err))
		}
	}

	e.AcceptNewCoordinator(c)
	return nil
}

// AcceptNewCoordinator installs c and ends any election. Accepting the
// current coordinator again has no effect. It reports whether the
// coordinator changed.
func (e *ElectionCoordinator) AcceptNewCoordinator(c ServerInfo) bool {
	if self, ok := e.state.Self(); !ok || self.ServerID != c.ServerID {
		if _, known := e.state.Member(c.ServerID); !known {
			if err := e.state.AddMember(c); err != nil {
				e.logger.Warn("cannot add coordinator to membership", logging.Error(err))
			}
		}
	}

	changed := e.state.AcceptCoordinator(c)
	e.retries.Store(0)

	if changed {
		self, _ := e.state.Self()
		e.logger.Info("coordinator accepted",
			logging.Coordinator(c.ServerID),
			logging.Bool("self", self.ServerID == c.ServerID))
		e.publish(Event{Type: EventCoordinatorChanged, ServerID: self.ServerID, Coordinator: c})
	}
	return changed
}

// StopElection cancels both election timeouts of the local server
func (e *ElectionCoordinator) StopElection() {
	self, ok := e.state.Self()
	if !ok {
		return
	}

	group := electionGroup(self.ServerID)
	answer := e.scheduler.Cancel(group, PhaseAnswer)
	coordinator := e.scheduler.Cancel(group, PhaseCoordinator)

	if answer || coordinator {
		e.logger.Debug("election timeouts cancelled", logging.Group(group))
		e.publish(Event{Type: EventElectionStopped, ServerID: self.ServerID})
	}
}

// IsCoordinator reports whether the local server is the accepted coordinator
func (e *ElectionCoordinator) IsCoordinator() bool {
	self, ok := e.state.Self()
	if !ok {
		return false
	}
	c, ok := e.state.Coordinator()
	return ok && c.ServerID == self.ServerID
}
