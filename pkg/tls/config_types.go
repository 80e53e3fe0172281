package tls

import (
	"crypto/tls"
	"time"
)

// Config holds TLS settings for the cluster management endpoint. The same
// certificate serves inbound election traffic and authenticates this server
// when it dials or probes peers.
type Config struct {
	Enabled  bool   // Enable TLS
	CertFile string // Path to certificate file
	KeyFile  string // Path to private key file
	CAFile   string // CA that signed every peer's certificate

	// Certificate generation options (if CertFile/KeyFile not provided)
	AutoGenerate bool          // Auto-generate a self-signed certificate
	Hosts        []string      // Hostnames/IPs for generated certificate
	Organization string        // Organization name for generated certificate
	ValidFor     time.Duration // Certificate validity duration (default 1 year)

	// TLS security settings
	MinVersion         uint16             // Minimum TLS version (default TLS 1.2)
	CipherSuites       []uint16           // Allowed TLS 1.2 cipher suites
	ClientAuth         tls.ClientAuthType // Peer certificate requirement when CAFile is set
	InsecureSkipVerify bool               // Skip peer verification; required for unrelated self-signed certs
}

// DefaultConfig returns a secure TLS configuration with recommended defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		AutoGenerate: true,
		Hosts:        []string{"localhost", "127.0.0.1"},
		Organization: "Strike",
		ValidFor:     365 * 24 * time.Hour,
		MinVersion:   tls.VersionTLS12,
		CipherSuites: SecureCipherSuites(),
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
}

// CertificateInfo holds certificate metadata
type CertificateInfo struct {
	Subject      string
	Issuer       string
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	DNSNames     []string
	IPAddresses  []string
	IsCA         bool
}

// IsExpired checks if the certificate has expired
func (ci *CertificateInfo) IsExpired() bool {
	return time.Now().After(ci.NotAfter)
}

// ExpiresIn returns the time until certificate expiration
func (ci *CertificateInfo) ExpiresIn() time.Duration {
	return time.Until(ci.NotAfter)
}

// SecureCipherSuites returns the TLS 1.2 suites peers may negotiate.
// TLS 1.3 suites are not configurable.
func SecureCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}
