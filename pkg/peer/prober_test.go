package peer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/metrics"
)

func serverAt(t *testing.T, addr net.Addr) cluster.ServerInfo {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("SplitHostPort failed: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return cluster.ServerInfo{ServerID: "peer", Address: host, ManagementPort: port}
}

func TestTLSProber_PlainTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	peer := serverAt(t, ln.Addr())
	p := NewTLSProber(nil, time.Second, metrics.NewRegistry())

	if !p.Probe(context.Background(), peer) {
		t.Error("Listening peer should be online")
	}

	ln.Close()
	if p.Probe(context.Background(), peer) {
		t.Error("Closed port should be offline")
	}
}

func TestTLSProber_Handshake(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	peer := serverAt(t, srv.Listener.Addr())

	trusted := NewTLSProber(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, time.Second, nil)
	if !trusted.Probe(context.Background(), peer) {
		t.Error("Handshake with a trusted certificate should succeed")
	}

	untrusted := NewTLSProber(&tls.Config{MinVersion: tls.VersionTLS12}, time.Second, nil)
	if untrusted.Probe(context.Background(), peer) {
		t.Error("Handshake with an unknown certificate should fail")
	}
}

func TestTLSProber_SilentPeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	// Accept but never speak TLS
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	p := NewTLSProber(&tls.Config{InsecureSkipVerify: true}, 200*time.Millisecond, nil)

	start := time.Now()
	if p.Probe(context.Background(), serverAt(t, ln.Addr())) {
		t.Error("Peer that never completes a handshake should be offline")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Probe not bounded by its timeout: %v", elapsed)
	}
}

func TestNewTLSProber_DefaultTimeout(t *testing.T) {
	p := NewTLSProber(nil, 0, nil)
	if p.timeout != DefaultProbeTimeout {
		t.Errorf("timeout = %v, want %v", p.timeout, DefaultProbeTimeout)
	}
}

// A socket transport whose listener is plain must probe without TLS even
// when a client TLS config is supplied.
func TestSocketTransport_PlainListenerProbesPlain(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	clientTLS := &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}
	tr, err := NewTransport(Options{
		Kind:          cluster.TransportMangos,
		Self:          cluster.ServerInfo{ServerID: "self", Address: "127.0.0.1", ManagementPort: 1},
		ClientTLS:     clientTLS,
		ProbeTimeout:  time.Second,
		SocketFactory: NewMangosSocketFactory(nil),
	})
	if err != nil {
		t.Fatalf("NewTransport failed: %v", err)
	}
	defer tr.Close()

	if !tr.Prober.Probe(context.Background(), serverAt(t, ln.Addr())) {
		t.Error("Live plain listener should be online")
	}

	if probeTLS(NewMangosSocketFactory(clientTLS), clientTLS) != clientTLS {
		t.Error("TLS mangos factory should probe with the client config")
	}
	if probeTLS(NewInprocSocketFactory(), clientTLS) != nil {
		t.Error("Inproc factory should probe without TLS")
	}
}
