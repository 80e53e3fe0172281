package peer

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
)

// zmqFactory is set by the zmq build
var zmqFactory func() SocketFactory

// Options selects and configures a transport
type Options struct {
	Kind        string // cluster.TransportMangos, TransportNATS or TransportZMQ
	Self        cluster.ServerInfo
	NATSURL     string
	SendTimeout time.Duration

	// ClientTLS is used for dialling peers and probing; ServerTLS for listening.
	// Both nil disables TLS.
	ClientTLS *tls.Config
	ServerTLS *tls.Config

	ProbeTimeout time.Duration
	Logger       logging.Logger
	Metrics      *metrics.Registry

	// SocketFactory overrides the factory derived from Kind (used for inproc)
	SocketFactory SocketFactory
}

// listener is satisfied by SocketListener and NATSListener
type listener interface {
	Start() error
	Stop() error
}

// Transport bundles what a server needs to take part in elections
type Transport struct {
	Messenger cluster.Messenger
	Prober    cluster.Prober

	newListener func(*Dispatcher) (listener, error)
	listener    listener
	dispatcher  *Dispatcher
	closers     []func() error
}

// NewTransport builds the messenger and prober for opts. Serve must be called
// before the server can receive messages.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	switch opts.Kind {
	case cluster.TransportNATS:
		return newNATSTransport(opts)
	case cluster.TransportMangos, "":
		if opts.SocketFactory == nil {
			opts.SocketFactory = NewMangosSocketFactory(opts.ClientTLS)
		}
		return newSocketTransport(opts), nil
	case cluster.TransportZMQ:
		if opts.SocketFactory == nil {
			if zmqFactory == nil {
				return nil, fmt.Errorf("%w: %s (build with -tags zmq)", ErrTransportUnavailable, opts.Kind)
			}
			opts.SocketFactory = zmqFactory()
		}
		return newSocketTransport(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, opts.Kind)
	}
}

func newSocketTransport(opts Options) *Transport {
	messenger := NewSocketMessenger(opts.SocketFactory, SocketMessengerConfig{
		SendTimeout: opts.SendTimeout,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})

	t := &Transport{
		Messenger: messenger,
		Prober:    NewTLSProber(probeTLS(opts.SocketFactory, opts.ClientTLS), opts.ProbeTimeout, opts.Metrics),
		closers:   []func() error{messenger.Close},
	}
	t.newListener = func(d *Dispatcher) (listener, error) {
		factory := opts.SocketFactory
		if mf, ok := factory.(*MangosSocketFactory); ok && mf.Scheme() == SchemeTLS {
			// Listening needs the server certificate
			factory = NewMangosSocketFactory(opts.ServerTLS)
		}
		addr := factory.ListenAddr(opts.Self.Address, opts.Self.ManagementPort)
		return NewSocketListener(factory, addr, d, opts.Logger)
	}
	return t
}

// probeTLS returns the config probes handshake with. Only a TLS mangos
// listener speaks TLS on the management port.
func probeTLS(factory SocketFactory, clientTLS *tls.Config) *tls.Config {
	if mf, ok := factory.(*MangosSocketFactory); ok && mf.Scheme() == SchemeTLS {
		return clientTLS
	}
	return nil
}

func newNATSTransport(opts Options) (*Transport, error) {
	conn, err := ConnectNATS(opts.NATSURL, opts.Self.ServerID, opts.ClientTLS, opts.Logger)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		Messenger: NewNATSMessenger(conn, opts.Metrics),
		Prober:    NewNATSProber(conn, opts.ProbeTimeout, opts.Metrics),
		closers: []func() error{func() error {
			conn.Close()
			return nil
		}},
	}
	t.newListener = func(d *Dispatcher) (listener, error) {
		return NewNATSListener(conn, opts.Self.ServerID, d, opts.Logger), nil
	}
	return t, nil
}

// Serve starts delivering inbound messages to handler
func (t *Transport) Serve(handler cluster.Handler, logger logging.Logger) error {
	if t.dispatcher != nil {
		return errors.New("transport already serving")
	}

	d := NewDispatcher(handler, logger)
	l, err := t.newListener(d)
	if err != nil {
		d.Close()
		return err
	}
	if err := l.Start(); err != nil {
		d.Close()
		return err
	}

	t.dispatcher = d
	t.listener = l
	return nil
}

// Close stops the listener, drains the dispatcher and closes connections
func (t *Transport) Close() error {
	var errs []error
	if t.listener != nil {
		if err := t.listener.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.dispatcher != nil {
		t.dispatcher.Close()
	}
	for _, c := range t.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
