package peer

import "errors"

var (
	ErrPeerUnreachable      = errors.New("peer unreachable")
	ErrMessengerClosed      = errors.New("messenger is closed")
	ErrDispatcherClosed     = errors.New("dispatcher is closed")
	ErrQueueFull            = errors.New("peer queue is full")
	ErrTransportUnavailable = errors.New("transport not compiled into this binary")
	ErrUnknownTransport     = errors.New("unknown transport kind")
)
