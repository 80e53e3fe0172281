package cluster

import (
	"context"
	"fmt"

	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
)

// HandleMessage dispatches an inbound election message
func (e *ElectionCoordinator) HandleMessage(ctx context.Context, msg Message) error {
	self, ok := e.state.Self()
	if !ok {
		return ErrSelfUnknown
	}
	if msg.SenderID == self.ServerID {
		return ErrMessageFromSelf
	}

	if e.metricsRegistry != nil {
		e.metricsRegistry.RecordMessageReceived(string(msg.Type))
	}

	switch msg.Type {
	case MsgStartElection:
		return e.HandleStartElection(ctx, msg)
	case MsgElectionAnswer:
		return e.HandleElectionAnswer(ctx, msg)
	case MsgSetCoordinator:
		e.HandleSetCoordinator(msg)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
	}
}

// HandleStartElection answers a junior peer and, if idle, starts an election
// against our own senior peers
func (e *ElectionCoordinator) HandleStartElection(ctx context.Context, msg Message) error {
	self, ok := e.state.Self()
	if !ok {
		return ErrSelfUnknown
	}

	sender := msg.Server()
	if !IsSenior(self.ServerID, sender.ServerID) {
		e.logger.Warn("START_ELECTION from a senior peer ignored", logging.Peer(sender.ServerID))
		return nil
	}
	if _, known := e.state.Member(sender.ServerID); !known {
		if err := e.state.AddMember(sender); err != nil {
			return err
		}
	}

	reply := NewMessage(MsgElectionAnswer, self)
	if err := e.messenger.SendToOne(ctx, sender, reply); err != nil {
		e.logger.Warn("ELECTION_ANSWER not delivered", logging.Peer(sender.ServerID), logging.Error(err))
	}

	started, err := e.startElectionIfIdle(ctx)
	if started {
		e.logger.Debug("election started on behalf of junior peer", logging.Peer(sender.ServerID))
	}
	return err
}

// HandleElectionAnswer moves a running election to waiting for the senior
// peer's announcement. Only the first answer of an election counts.
func (e *ElectionCoordinator) HandleElectionAnswer(ctx context.Context, msg Message) error {
	self, ok := e.state.Self()
	if !ok {
		return ErrSelfUnknown
	}
	if !e.state.MarkAnswerReceived() {
		e.logger.Debug("answer ignored", logging.Peer(msg.SenderID))
		return nil
	}

	group := electionGroup(self.ServerID)
	e.scheduler.Cancel(group, PhaseAnswer)

	if _, err := e.scheduler.Schedule(group, PhaseCoordinator, e.state.CoordinatorAnnounceTimeout(), e.onCoordinatorTimeout); err != nil {
		e.logger.Error("cannot wait for coordinator announcement", logging.Error(err))
		return fmt.Errorf("%w: %w", ErrScheduleFailed, err)
	}

	e.recordElection(metrics.ResultDeferred)
	e.logger.Info("senior peer answered, waiting for coordinator", logging.Peer(msg.SenderID))
	return nil
}

// HandleSetCoordinator stops local election progress and accepts the
// announced coordinator unconditionally
func (e *ElectionCoordinator) HandleSetCoordinator(msg Message) {
	// A coordinator timeout already past its context check sees the flag and stands down
	e.state.SetCoordinatorAnnounced(true)
	e.StopElection()
	e.AcceptNewCoordinator(msg.Server())
}
