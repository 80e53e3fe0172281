package cluster

import "errors"

// Configuration errors
var (
	ErrInvalidServerID         = errors.New("server ID cannot be empty")
	ErrAnswerTimeoutTooSmall   = errors.New("answer timeout must be positive")
	ErrSelfNotInBootstrap      = errors.New("self server ID not present in bootstrap server list")
	ErrDuplicateServerID       = errors.New("duplicate server ID in bootstrap server list")
	ErrUnsupportedBootstrapVer = errors.New("unsupported bootstrap file version")
	ErrZMQWithTLS              = errors.New("zmq transport does not support TLS")
)

// Membership errors
var (
	ErrServerNotFound   = errors.New("server not found in membership")
	ErrCannotRemoveSelf = errors.New("cannot remove self from cluster")
	ErrSelfUnknown      = errors.New("self server has not been initialised")
)

// Election errors
var (
	ErrScheduleFailed  = errors.New("failed to schedule election timeout")
	ErrInvalidMessage  = errors.New("invalid election message")
	ErrUnknownMessage  = errors.New("unknown election message type")
	ErrMessageFromSelf = errors.New("election message sent by self")
)

// Lock errors
var (
	ErrIdentityLocked = errors.New("identity is locked by a registration in progress")
	ErrRoomIDLocked   = errors.New("room id is locked by a registration in progress")
)
