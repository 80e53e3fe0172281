package peer

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/metrics"
)

// DefaultProbeTimeout bounds a liveness probe when the caller sets no deadline
const DefaultProbeTimeout = 5 * time.Second

// TLSProber checks that a peer's management endpoint completes a TLS
// handshake, or accepts a TCP connection when no TLS config is set
type TLSProber struct {
	tlsConfig       *tls.Config
	timeout         time.Duration
	metricsRegistry *metrics.Registry
}

// NewTLSProber creates a prober. tlsConfig may be nil for plain TCP.
func NewTLSProber(tlsConfig *tls.Config, timeout time.Duration, reg *metrics.Registry) *TLSProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &TLSProber{tlsConfig: tlsConfig, timeout: timeout, metricsRegistry: reg}
}

// Probe reports whether peer is online. Any failure means offline.
func (p *TLSProber) Probe(ctx context.Context, peer cluster.ServerInfo) bool {
	start := time.Now()
	online := p.probe(ctx, peer)

	if p.metricsRegistry != nil {
		p.metricsRegistry.RecordProbe(online, time.Since(start))
	}
	return online
}

func (p *TLSProber) probe(ctx context.Context, peer cluster.ServerInfo) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: p.timeout}
	addr := peer.ManagementAddr()

	var conn net.Conn
	var err error
	if p.tlsConfig == nil {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		// tls.Dialer completes the handshake before returning
		td := &tls.Dialer{NetDialer: dialer, Config: p.tlsConfig}
		conn, err = td.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

var _ cluster.Prober = (*TLSProber)(nil)
