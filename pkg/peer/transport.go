package peer

import (
	"io"
	"time"
)

// Socket represents a messaging socket that can send and receive frames.
// It abstracts the underlying transport (mangos or ZMQ).
type Socket interface {
	io.Closer
	Send([]byte) error
	Recv() ([]byte, error)
	SetRecvDeadline(d time.Duration) error
	SetSendDeadline(d time.Duration) error
}

// ListenSocket is a socket that can bind to an address and accept connections.
type ListenSocket interface {
	Socket
	Listen(addr string) error
}

// DialSocket is a socket that can connect to a remote address.
type DialSocket interface {
	Socket
	Dial(addr string) error
}

// SocketFactory creates the PUSH/PULL pair election messages travel over
type SocketFactory interface {
	NewPushSocket() (DialSocket, error)
	NewPullSocket() (ListenSocket, error)

	// DialAddr and ListenAddr format endpoint URLs for this transport
	DialAddr(host string, port int) string
	ListenAddr(host string, port int) string
}
