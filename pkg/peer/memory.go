package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
)

// MemoryNetwork connects servers inside one process. Messages go through the
// wire codec and a per-node Dispatcher, so delivery is asynchronous and
// ordered per sender. Each node can be switched offline to simulate a crash.
type MemoryNetwork struct {
	mu     sync.RWMutex
	nodes  map[string]*memoryNode
	logger logging.Logger

	metricsRegistry *metrics.Registry
}

type memoryNode struct {
	info       cluster.ServerInfo
	dispatcher *Dispatcher
	online     bool
}

// NewMemoryNetwork creates an empty in-process network
func NewMemoryNetwork(logger logging.Logger, reg *metrics.Registry) *MemoryNetwork {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &MemoryNetwork{
		nodes:           make(map[string]*memoryNode),
		logger:          logger,
		metricsRegistry: reg,
	}
}

// Join registers a server and returns the messenger it sends through.
// The server receives nothing until Serve is called.
func (n *MemoryNetwork) Join(info cluster.ServerInfo) *MemoryMessenger {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.nodes[info.ServerID]; !ok {
		n.nodes[info.ServerID] = &memoryNode{info: info, online: true}
	}
	return &MemoryMessenger{network: n, from: info.ServerID}
}

// Serve routes messages addressed to serverID to handler
func (n *MemoryNetwork) Serve(serverID string, handler cluster.Handler) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	node, ok := n.nodes[serverID]
	if !ok {
		return fmt.Errorf("%w: %s", cluster.ErrServerNotFound, serverID)
	}
	if node.dispatcher != nil {
		node.dispatcher.Close()
	}
	node.dispatcher = NewDispatcher(handler, n.logger.With(logging.ServerID(serverID)))
	return nil
}

// SetOnline marks a server reachable or unreachable. An offline server
// neither sends nor receives.
func (n *MemoryNetwork) SetOnline(serverID string, online bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if node, ok := n.nodes[serverID]; ok {
		node.online = online
	}
}

// IsOnline reports whether serverID is joined and online
func (n *MemoryNetwork) IsOnline(serverID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.nodes[serverID]
	return ok && node.online
}

// Close stops every node's dispatcher
func (n *MemoryNetwork) Close() {
	n.mu.Lock()
	nodes := make([]*memoryNode, 0, len(n.nodes))
	for _, node := range n.nodes {
		nodes = append(nodes, node)
	}
	n.mu.Unlock()

	for _, node := range nodes {
		if node.dispatcher != nil {
			node.dispatcher.Close()
		}
	}
}

// Prober returns a liveness probe backed by the online switches
func (n *MemoryNetwork) Prober() cluster.Prober {
	return memoryProber{network: n}
}

func (n *MemoryNetwork) deliver(from string, to cluster.ServerInfo, frame []byte) error {
	n.mu.RLock()
	sender, senderOK := n.nodes[from]
	target, targetOK := n.nodes[to.ServerID]
	var dispatcher *Dispatcher
	reachable := senderOK && sender.online && targetOK && target.online && target.dispatcher != nil
	if reachable {
		dispatcher = target.dispatcher
	}
	n.mu.RUnlock()

	if !reachable {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, to.ServerID)
	}
	return dispatcher.DispatchFrame(frame)
}

// MemoryMessenger sends on behalf of one server in a MemoryNetwork
type MemoryMessenger struct {
	network *MemoryNetwork
	from    string
}

// SendToOne delivers msg to peer
func (m *MemoryMessenger) SendToOne(ctx context.Context, peer cluster.ServerInfo, msg cluster.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := cluster.EncodeMessage(msg)
	if err == nil {
		err = m.network.deliver(m.from, peer, frame)
	}

	if m.network.metricsRegistry != nil {
		m.network.metricsRegistry.RecordMessageSent(string(msg.Type), err)
	}
	return err
}

// SendToMany delivers msg to every peer and joins the failures
func (m *MemoryMessenger) SendToMany(ctx context.Context, peers []cluster.ServerInfo, msg cluster.Message) error {
	var errs []error
	for _, p := range peers {
		if err := m.SendToOne(ctx, p, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type memoryProber struct {
	network *MemoryNetwork
}

func (p memoryProber) Probe(ctx context.Context, peer cluster.ServerInfo) bool {
	if ctx.Err() != nil {
		return false
	}
	return p.network.IsOnline(peer.ServerID)
}

var (
	_ cluster.Messenger = (*MemoryMessenger)(nil)
	_ cluster.Prober    = memoryProber{}
)
