//go:build zmq
// +build zmq

package peer

import (
	"net"
	"strconv"
	"time"

	zmq "github.com/pebbe/zmq4"
)

func init() {
	zmqFactory = func() SocketFactory { return NewZMQSocketFactory() }
}

// zmqSocket wraps a zmq4 socket to implement our Socket interface.
type zmqSocket struct {
	sock *zmq.Socket
}

func (s *zmqSocket) Send(data []byte) error {
	_, err := s.sock.SendBytes(data, 0)
	return err
}

func (s *zmqSocket) Recv() ([]byte, error) {
	return s.sock.RecvBytes(0)
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}

func (s *zmqSocket) SetRecvDeadline(d time.Duration) error {
	return s.sock.SetRcvtimeo(d)
}

func (s *zmqSocket) SetSendDeadline(d time.Duration) error {
	return s.sock.SetSndtimeo(d)
}

func (s *zmqSocket) Listen(addr string) error {
	return s.sock.Bind(addr)
}

func (s *zmqSocket) Dial(addr string) error {
	return s.sock.Connect(addr)
}

// ZMQSocketFactory creates ZeroMQ PUSH/PULL sockets over tcp
type ZMQSocketFactory struct{}

// NewZMQSocketFactory creates a new ZeroMQ socket factory
func NewZMQSocketFactory() *ZMQSocketFactory {
	return &ZMQSocketFactory{}
}

func (f *ZMQSocketFactory) NewPushSocket() (DialSocket, error) {
	sock, err := zmq.NewSocket(zmq.PUSH)
	if err != nil {
		return nil, err
	}
	// Pending frames to a dead peer are discarded on close
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (f *ZMQSocketFactory) NewPullSocket() (ListenSocket, error) {
	sock, err := zmq.NewSocket(zmq.PULL)
	if err != nil {
		return nil, err
	}
	return &zmqSocket{sock: sock}, nil
}

func (f *ZMQSocketFactory) DialAddr(host string, port int) string {
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func (f *ZMQSocketFactory) ListenAddr(host string, port int) string {
	return "tcp://" + net.JoinHostPort("*", strconv.Itoa(port))
}

// Ensure ZMQSocketFactory implements SocketFactory
var _ SocketFactory = (*ZMQSocketFactory)(nil)
