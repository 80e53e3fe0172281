package peer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
)

// ElectionSubject is the subject a server receives election messages on
func ElectionSubject(serverID string) string {
	return "strike.cluster." + serverID + ".election"
}

// PingSubject is the subject a server answers liveness probes on
func PingSubject(serverID string) string {
	return "strike.cluster." + serverID + ".ping"
}

// ConnectNATS connects to the broker at url on behalf of serverID
func ConnectNATS(url, serverID string, tlsConfig *tls.Config, logger logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With(logging.Component("nats"))

	opts := []nats.Option{
		nats.Name("strike-" + serverID),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected from broker", logging.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to broker", logging.String("url", nc.ConnectedUrl()))
		}),
	}
	if tlsConfig != nil {
		opts = append(opts, nats.Secure(tlsConfig))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSMessenger publishes election messages to each peer's election subject
type NATSMessenger struct {
	conn            *nats.Conn
	metricsRegistry *metrics.Registry
}

// NewNATSMessenger creates a messenger on conn
func NewNATSMessenger(conn *nats.Conn, reg *metrics.Registry) *NATSMessenger {
	return &NATSMessenger{conn: conn, metricsRegistry: reg}
}

// SendToOne publishes msg on peer's election subject
func (m *NATSMessenger) SendToOne(ctx context.Context, peer cluster.ServerInfo, msg cluster.Message) error {
	err := m.publish(ctx, peer, msg)
	if m.metricsRegistry != nil {
		m.metricsRegistry.RecordMessageSent(string(msg.Type), err)
	}
	return err
}

func (m *NATSMessenger) publish(ctx context.Context, peer cluster.ServerInfo, msg cluster.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.conn.IsConnected() {
		return fmt.Errorf("%w: %s: broker not connected", ErrPeerUnreachable, peer.ServerID)
	}

	frame, err := cluster.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := m.conn.Publish(ElectionSubject(peer.ServerID), frame); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, peer.ServerID, err)
	}
	return nil
}

// SendToMany publishes msg to every peer and joins the failures
func (m *NATSMessenger) SendToMany(ctx context.Context, peers []cluster.ServerInfo, msg cluster.Message) error {
	var errs []error
	for _, p := range peers {
		if err := m.SendToOne(ctx, p, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NATSListener subscribes to this server's election and ping subjects
type NATSListener struct {
	conn       *nats.Conn
	serverID   string
	dispatcher *Dispatcher
	logger     logging.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSListener creates a listener for serverID
func NewNATSListener(conn *nats.Conn, serverID string, dispatcher *Dispatcher, logger logging.Logger) *NATSListener {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &NATSListener{
		conn:       conn,
		serverID:   serverID,
		dispatcher: dispatcher,
		logger:     logger.With(logging.Component("listener")),
	}
}

// Start subscribes to the election and ping subjects
func (l *NATSListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.subs) > 0 {
		return nil
	}

	election, err := l.conn.Subscribe(ElectionSubject(l.serverID), func(msg *nats.Msg) {
		_ = l.dispatcher.DispatchFrame(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to election subject: %w", err)
	}

	ping, err := l.conn.Subscribe(PingSubject(l.serverID), func(msg *nats.Msg) {
		if err := msg.Respond([]byte("pong")); err != nil {
			l.logger.Debug("ping reply failed", logging.Error(err))
		}
	})
	if err != nil {
		election.Unsubscribe()
		return fmt.Errorf("failed to subscribe to ping subject: %w", err)
	}

	l.subs = []*nats.Subscription{election, ping}
	l.logger.Info("listening for election messages", logging.String("subject", ElectionSubject(l.serverID)))
	return nil
}

// Stop removes both subscriptions
func (l *NATSListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, sub := range l.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	l.subs = nil
	return errors.Join(errs...)
}

// NATSProber checks a peer by request/reply on its ping subject
type NATSProber struct {
	conn            *nats.Conn
	timeout         time.Duration
	metricsRegistry *metrics.Registry
}

// NewNATSProber creates a prober; timeout applies when ctx has no deadline
func NewNATSProber(conn *nats.Conn, timeout time.Duration, reg *metrics.Registry) *NATSProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &NATSProber{conn: conn, timeout: timeout, metricsRegistry: reg}
}

// Probe reports whether peer answered a ping
func (p *NATSProber) Probe(ctx context.Context, peer cluster.ServerInfo) bool {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	_, err := p.conn.RequestWithContext(ctx, PingSubject(peer.ServerID), nil)
	online := err == nil

	if p.metricsRegistry != nil {
		p.metricsRegistry.RecordProbe(online, time.Since(start))
	}
	return online
}

var (
	_ cluster.Messenger = (*NATSMessenger)(nil)
	_ cluster.Prober    = (*NATSProber)(nil)
)
