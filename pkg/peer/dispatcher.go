package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/logging"
)

// DefaultQueueSize bounds the backlog of undelivered messages per sender
const DefaultQueueSize = 64

// Dispatcher hands inbound messages to a cluster.Handler. Messages from the
// same sender are handled one at a time in arrival order; different senders
// are handled concurrently.
type Dispatcher struct {
	handler   cluster.Handler
	logger    logging.Logger
	queueSize int

	mu     sync.Mutex
	queues map[string]chan cluster.Message
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher for handler
func NewDispatcher(handler cluster.Handler, logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler:   handler,
		logger:    logger.With(logging.Component("dispatcher")),
		queueSize: DefaultQueueSize,
		queues:    make(map[string]chan cluster.Message),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// DispatchFrame decodes a wire frame and queues it
func (d *Dispatcher) DispatchFrame(frame []byte) error {
	msg, err := cluster.DecodeMessage(frame)
	if err != nil {
		d.logger.Warn("dropping malformed frame", logging.Error(err))
		return err
	}
	return d.Dispatch(msg)
}

// Dispatch queues msg on its sender's worker without blocking
func (d *Dispatcher) Dispatch(msg cluster.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	q, ok := d.queues[msg.SenderID]
	if !ok {
		q = make(chan cluster.Message, d.queueSize)
		d.queues[msg.SenderID] = q
		d.wg.Add(1)
		go d.worker(msg.SenderID, q)
	}

	select {
	case q <- msg:
		return nil
	default:
		d.logger.Warn("peer queue full, dropping message",
			logging.Peer(msg.SenderID),
			logging.MessageType(string(msg.Type)))
		return fmt.Errorf("%w: %s", ErrQueueFull, msg.SenderID)
	}
}

func (d *Dispatcher) worker(sender string, q <-chan cluster.Message) {
	defer d.wg.Done()

	for msg := range q {
		if err := d.handler.HandleMessage(d.ctx, msg); err != nil {
			d.logger.Warn("message handling failed",
				logging.Peer(sender),
				logging.MessageType(string(msg.Type)),
				logging.Error(err))
		}
	}
}

// Close stops accepting messages, cancels in-flight handlers and waits for
// the workers to exit
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for sender, q := range d.queues {
		close(q)
		delete(d.queues, sender)
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
