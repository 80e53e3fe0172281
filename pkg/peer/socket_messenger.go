package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
)

// DefaultSendTimeout bounds a single frame send to one peer
const DefaultSendTimeout = 2 * time.Second

// SocketMessenger sends election messages over one PUSH socket per peer,
// dialled lazily and dropped after a failed send so the next send redials.
type SocketMessenger struct {
	factory     SocketFactory
	sendTimeout time.Duration
	logger      logging.Logger

	metricsRegistry *metrics.Registry

	mu      sync.Mutex
	sockets map[string]DialSocket // serverID -> push socket
	closed  bool
}

// SocketMessengerConfig configures a SocketMessenger
type SocketMessengerConfig struct {
	SendTimeout time.Duration
	Logger      logging.Logger
	Metrics     *metrics.Registry
}

// NewSocketMessenger creates a messenger using factory
func NewSocketMessenger(factory SocketFactory, config SocketMessengerConfig) *SocketMessenger {
	timeout := config.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &SocketMessenger{
		factory:         factory,
		sendTimeout:     timeout,
		logger:          logger.With(logging.Component("messenger")),
		metricsRegistry: config.Metrics,
		sockets:         make(map[string]DialSocket),
	}
}

// SendToOne pushes msg to peer's management endpoint
func (m *SocketMessenger) SendToOne(ctx context.Context, peer cluster.ServerInfo, msg cluster.Message) error {
	err := m.send(ctx, peer, msg)
	if m.metricsRegistry != nil {
		m.metricsRegistry.RecordMessageSent(string(msg.Type), err)
	}
	if err != nil {
		m.logger.Debug("send failed",
			logging.Peer(peer.ServerID),
			logging.MessageType(string(msg.Type)),
			logging.Error(err))
	}
	return err
}

func (m *SocketMessenger) send(ctx context.Context, peer cluster.ServerInfo, msg cluster.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := cluster.EncodeMessage(msg)
	if err != nil {
		return err
	}

	sock, err := m.socketFor(peer)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, peer.ServerID, err)
	}

	if err := sock.Send(frame); err != nil {
		m.drop(peer.ServerID, sock)
		return fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, peer.ServerID, err)
	}
	return nil
}

// SendToMany pushes msg to every peer concurrently and joins the failures
func (m *SocketMessenger) SendToMany(ctx context.Context, peers []cluster.ServerInfo, msg cluster.Message) error {
	errs := make([]error, len(peers))

	var wg sync.WaitGroup
	for i, p := range peers {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.SendToOne(ctx, p, msg)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (m *SocketMessenger) socketFor(peer cluster.ServerInfo) (DialSocket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrMessengerClosed
	}
	if sock, ok := m.sockets[peer.ServerID]; ok {
		return sock, nil
	}

	sock, err := m.factory.NewPushSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.SetSendDeadline(m.sendTimeout); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Dial(m.factory.DialAddr(peer.Address, peer.ManagementPort)); err != nil {
		sock.Close()
		return nil, err
	}

	m.sockets[peer.ServerID] = sock
	return sock, nil
}

func (m *SocketMessenger) drop(serverID string, sock DialSocket) {
	m.mu.Lock()
	if m.sockets[serverID] == sock {
		delete(m.sockets, serverID)
	}
	m.mu.Unlock()
	sock.Close()
}

// Close closes every peer socket
func (m *SocketMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for id, sock := range m.sockets {
		if err := sock.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.sockets, id)
	}
	return errors.Join(errs...)
}

var _ cluster.Messenger = (*SocketMessenger)(nil)
