package peer

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// mangos URL schemes
const (
	SchemeTCP    = "tcp"
	SchemeTLS    = "tls+tcp"
	SchemeInproc = "inproc"
)

// mangosSocket wraps a mangos.Socket to implement our Socket interface.
type mangosSocket struct {
	sock mangos.Socket
}

func (s *mangosSocket) Send(data []byte) error {
	return s.sock.Send(data)
}

func (s *mangosSocket) Recv() ([]byte, error) {
	return s.sock.Recv()
}

func (s *mangosSocket) Close() error {
	return s.sock.Close()
}

func (s *mangosSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionRecvDeadline, d)
}

func (s *mangosSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetOption(mangos.OptionSendDeadline, d)
}

func (s *mangosSocket) Listen(addr string) error {
	return s.sock.Listen(addr)
}

func (s *mangosSocket) Dial(addr string) error {
	return s.sock.Dial(addr)
}

// MangosSocketFactory creates mangos PUSH/PULL sockets
type MangosSocketFactory struct {
	scheme    string
	tlsConfig *tls.Config
}

// NewMangosSocketFactory uses tls+tcp when tlsConfig is set and tcp otherwise
func NewMangosSocketFactory(tlsConfig *tls.Config) *MangosSocketFactory {
	scheme := SchemeTCP
	if tlsConfig != nil {
		scheme = SchemeTLS
	}
	return &MangosSocketFactory{scheme: scheme, tlsConfig: tlsConfig}
}

// NewInprocSocketFactory creates sockets on the in-process transport
func NewInprocSocketFactory() *MangosSocketFactory {
	return &MangosSocketFactory{scheme: SchemeInproc}
}

// Scheme returns the URL scheme sockets are addressed with
func (f *MangosSocketFactory) Scheme() string {
	return f.scheme
}

func (f *MangosSocketFactory) NewPushSocket() (DialSocket, error) {
	sock, err := push.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := f.configure(sock); err != nil {
		sock.Close()
		return nil, err
	}
	return &mangosSocket{sock: sock}, nil
}

func (f *MangosSocketFactory) NewPullSocket() (ListenSocket, error) {
	sock, err := pull.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := f.configure(sock); err != nil {
		sock.Close()
		return nil, err
	}
	return &mangosSocket{sock: sock}, nil
}

func (f *MangosSocketFactory) configure(sock mangos.Socket) error {
	if f.scheme != SchemeTLS {
		return nil
	}
	if err := sock.SetOption(mangos.OptionTLSConfig, f.tlsConfig); err != nil {
		return fmt.Errorf("failed to set TLS config: %w", err)
	}
	return nil
}

func (f *MangosSocketFactory) DialAddr(host string, port int) string {
	return f.scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func (f *MangosSocketFactory) ListenAddr(host string, port int) string {
	return f.DialAddr(host, port)
}

// Ensure MangosSocketFactory implements SocketFactory
var _ SocketFactory = (*MangosSocketFactory)(nil)
