package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strikechat/strike-server/pkg/validation"
)

// MessageType identifies an election protocol message
type MessageType string

const (
	// MsgStartElection asks senior peers whether they are alive
	MsgStartElection MessageType = "START_ELECTION"
	// MsgElectionAnswer is a senior peer's reply to START_ELECTION
	MsgElectionAnswer MessageType = "ELECTION_ANSWER"
	// MsgSetCoordinator announces the server carried in the message as coordinator
	MsgSetCoordinator MessageType = "SET_COORDINATOR"
)

// Message is a one-way election protocol message. The sender fields carry
// the ServerInfo the message is about: the sender itself for
// START_ELECTION and ELECTION_ANSWER, the new coordinator for SET_COORDINATOR.
type Message struct {
	Type           MessageType `json:"type" validate:"required,oneof=START_ELECTION ELECTION_ANSWER SET_COORDINATOR"`
	SenderID       string      `json:"sender_id" validate:"required,max=64"`
	Address        string      `json:"address" validate:"required"`
	ClientPort     int         `json:"client_port" validate:"min=0,max=65535"`
	ManagementPort int         `json:"management_port" validate:"min=1,max=65535"`
	MessageID      string      `json:"message_id" validate:"required,uuid"`
	SentAt         time.Time   `json:"sent_at"`
}

// NewMessage builds a message of type t about server
func NewMessage(t MessageType, server ServerInfo) Message {
	return Message{
		Type:           t,
		SenderID:       server.ServerID,
		Address:        server.Address,
		ClientPort:     server.ClientPort,
		ManagementPort: server.ManagementPort,
		MessageID:      uuid.NewString(),
		SentAt:         time.Now().UTC(),
	}
}

// Server returns the ServerInfo carried by the message
func (m Message) Server() ServerInfo {
	return ServerInfo{
		ServerID:       m.SenderID,
		Address:        m.Address,
		ClientPort:     m.ClientPort,
		ManagementPort: m.ManagementPort,
	}
}

// Validate checks required fields and ranges
func (m Message) Validate() error {
	if err := validation.Struct(m); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}

// EncodeMessage serializes a message for the wire
func EncodeMessage(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeMessage parses and validates a wire message
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Messenger delivers one-way messages to peers. Implementations must not
// retry indefinitely; a returned error means the peer is treated as silent.
type Messenger interface {
	SendToOne(ctx context.Context, peer ServerInfo, msg Message) error
	// SendToMany attempts every peer and joins the per-peer errors
	SendToMany(ctx context.Context, peers []ServerInfo, msg Message) error
}

// Prober performs a bounded reachability check against a peer
type Prober interface {
	Probe(ctx context.Context, peer ServerInfo) bool
}

// Handler consumes inbound election messages
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, msg Message) error

// HandleMessage calls f
func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
