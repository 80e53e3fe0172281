package peer

import (
	"sync"
	"time"

	"github.com/strikechat/strike-server/pkg/logging"
)

// SocketListener receives election frames on a PULL socket and hands them to a Dispatcher
type SocketListener struct {
	socket      ListenSocket
	addr        string
	dispatcher  *Dispatcher
	recvTimeout time.Duration
	logger      logging.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// NewSocketListener creates a listener bound to addr once started
func NewSocketListener(factory SocketFactory, addr string, dispatcher *Dispatcher, logger logging.Logger) (*SocketListener, error) {
	socket, err := factory.NewPullSocket()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &SocketListener{
		socket:      socket,
		addr:        addr,
		dispatcher:  dispatcher,
		recvTimeout: 500 * time.Millisecond,
		logger:      logger.With(logging.Component("listener")),
		stopCh:      make(chan struct{}),
	}, nil
}

// Addr returns the listen address
func (l *SocketListener) Addr() string {
	return l.addr
}

// Start binds the socket and begins receiving
func (l *SocketListener) Start() error {
	l.runningMu.Lock()
	defer l.runningMu.Unlock()

	if l.running {
		return nil
	}

	if err := l.socket.Listen(l.addr); err != nil {
		return err
	}

	if err := l.socket.SetRecvDeadline(l.recvTimeout); err != nil {
		l.socket.Close()
		return err
	}

	l.running = true
	l.wg.Add(1)
	go l.receiveLoop()

	l.logger.Info("listening for election messages", logging.String("addr", l.addr))
	return nil
}

// Stop stops the receive loop and closes the socket
func (l *SocketListener) Stop() error {
	l.runningMu.Lock()
	defer l.runningMu.Unlock()

	if !l.running {
		return nil
	}

	close(l.stopCh)
	l.running = false
	l.wg.Wait()
	err := l.socket.Close()

	l.logger.Info("listener stopped", logging.String("addr", l.addr))
	return err
}

func (l *SocketListener) receiveLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		frame, err := l.socket.Recv()
		if err != nil {
			continue // Timeout
		}

		// Malformed frames and full queues are logged by the dispatcher
		_ = l.dispatcher.DispatchFrame(frame)
	}
}
