package peer

import (
	"context"
	"errors"
	"testing"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/metrics"
)

func TestMemoryNetwork_Delivery(t *testing.T) {
	n := NewMemoryNetwork(nil, metrics.NewRegistry())
	defer n.Close()

	a := testServer("a", 5000)
	b := testServer("b", 5001)
	fromA := n.Join(a)
	n.Join(b)

	h := newRecordingHandler()
	if err := n.Serve("b", h); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	msg := cluster.NewMessage(cluster.MsgStartElection, a)
	if err := fromA.SendToOne(context.Background(), b, msg); err != nil {
		t.Fatalf("SendToOne failed: %v", err)
	}

	got := h.wait(t, 1)
	if got[0].MessageID != msg.MessageID || got[0].Server() != a {
		t.Errorf("Unexpected message: %+v", got[0])
	}
}

func TestMemoryNetwork_Offline(t *testing.T) {
	n := NewMemoryNetwork(nil, nil)
	defer n.Close()

	a := testServer("a", 5000)
	b := testServer("b", 5001)
	fromA := n.Join(a)
	fromB := n.Join(b)
	_ = n.Serve("a", newRecordingHandler())
	_ = n.Serve("b", newRecordingHandler())

	n.SetOnline("b", false)
	ctx := context.Background()

	if err := fromA.SendToOne(ctx, b, cluster.NewMessage(cluster.MsgStartElection, a)); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("Send to offline peer: expected ErrPeerUnreachable, got %v", err)
	}
	if err := fromB.SendToOne(ctx, a, cluster.NewMessage(cluster.MsgElectionAnswer, b)); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("Send from offline peer: expected ErrPeerUnreachable, got %v", err)
	}

	prober := n.Prober()
	if prober.Probe(ctx, b) {
		t.Error("Offline peer should fail the probe")
	}
	if !prober.Probe(ctx, a) {
		t.Error("Online peer should pass the probe")
	}

	n.SetOnline("b", true)
	if !n.IsOnline("b") {
		t.Error("Peer should be back online")
	}
}

func TestMemoryNetwork_UnservedAndUnknown(t *testing.T) {
	n := NewMemoryNetwork(nil, nil)
	defer n.Close()

	a := testServer("a", 5000)
	fromA := n.Join(a)
	n.Join(testServer("quiet", 5001))

	ctx := context.Background()
	msg := cluster.NewMessage(cluster.MsgStartElection, a)

	if err := fromA.SendToOne(ctx, testServer("quiet", 5001), msg); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("Expected ErrPeerUnreachable for a server without handler, got %v", err)
	}
	if err := n.Serve("ghost", newRecordingHandler()); !errors.Is(err, cluster.ErrServerNotFound) {
		t.Errorf("Expected ErrServerNotFound, got %v", err)
	}

	err := fromA.SendToMany(ctx, []cluster.ServerInfo{testServer("x", 1), testServer("y", 2)}, msg)
	if !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("Expected joined ErrPeerUnreachable, got %v", err)
	}
}

func TestMemoryNetwork_CancelledContext(t *testing.T) {
	n := NewMemoryNetwork(nil, nil)
	defer n.Close()

	a := testServer("a", 5000)
	fromA := n.Join(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := fromA.SendToOne(ctx, a, cluster.NewMessage(cluster.MsgStartElection, a)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if n.Prober().Probe(ctx, a) {
		t.Error("Probe with a cancelled context should fail")
	}
}
