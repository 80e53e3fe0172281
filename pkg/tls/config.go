package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

var (
	ErrNoCertificate = errors.New("TLS enabled but no certificate provided and auto-generation disabled")
	ErrInvalidPEM    = errors.New("failed to parse certificate PEM")
)

// Pair is the server and client side of one server's TLS identity
type Pair struct {
	Server *tls.Config // listening for election traffic
	Client *tls.Config // dialling and probing peers
}

// Load builds the TLS pair for cfg. It returns nil when TLS is disabled.
func Load(cfg *Config) (*Pair, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cert, err := loadCertificate(cfg)
	if err != nil {
		return nil, err
	}

	var pool *x509.CertPool
	if cfg.CAFile != "" {
		pool, err = LoadCAPool(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}

	server := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   cfg.MinVersion,
		CipherSuites: cfg.CipherSuites,
		ClientAuth:   tls.NoClientCert,
	}
	if pool != nil {
		server.ClientCAs = pool
		server.ClientAuth = cfg.ClientAuth
	}

	client := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		RootCAs:            pool,
		MinVersion:         cfg.MinVersion,
		CipherSuites:       cfg.CipherSuites,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402 -- opt-in for self-signed clusters
	}

	return &Pair{Server: server, Client: client}, nil
}

// LoadTLSConfig returns only the server side of Load
func LoadTLSConfig(cfg *Config) (*tls.Config, error) {
	pair, err := Load(cfg)
	if err != nil || pair == nil {
		return nil, err
	}
	return pair.Server, nil
}

func loadCertificate(cfg *Config) (tls.Certificate, error) {
	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		if _, err := os.Stat(cfg.CertFile); errors.Is(err, os.ErrNotExist) && cfg.AutoGenerate {
			// First start: generate once and reuse on restart
			if err := GenerateAndSaveCertificate(cfg, cfg.CertFile, cfg.KeyFile); err != nil {
				return tls.Certificate{}, err
			}
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		return cert, nil
	case cfg.AutoGenerate:
		cert, err := GenerateSelfSignedCert(cfg)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		return cert, nil
	default:
		return tls.Certificate{}, ErrNoCertificate
	}
}

// LoadCAPool loads a CA certificate pool from a file
func LoadCAPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(caCert) {
		return nil, ErrInvalidPEM
	}

	return certPool, nil
}

func readCertificate(certFile string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, ErrInvalidPEM
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// VerifyCertificate checks that a certificate file is currently valid
func VerifyCertificate(certFile string) error {
	cert, err := readCertificate(certFile)
	if err != nil {
		return err
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid")
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate has expired")
	}
	return nil
}

// GetCertificateInfo returns information about a certificate
func GetCertificateInfo(certFile string) (*CertificateInfo, error) {
	cert, err := readCertificate(certFile)
	if err != nil {
		return nil, err
	}
	return certificateInfo(cert), nil
}

// LeafInfo describes the first certificate of a loaded TLS config
func LeafInfo(cfg *tls.Config) (*CertificateInfo, error) {
	if cfg == nil || len(cfg.Certificates) == 0 || len(cfg.Certificates[0].Certificate) == 0 {
		return nil, errors.New("no certificate configured")
	}
	cert, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return certificateInfo(cert), nil
}

func certificateInfo(cert *x509.Certificate) *CertificateInfo {
	ips := make([]string, len(cert.IPAddresses))
	for i, ip := range cert.IPAddresses {
		ips[i] = ip.String()
	}
	return &CertificateInfo{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.String(),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		DNSNames:     cert.DNSNames,
		IPAddresses:  ips,
		IsCA:         cert.IsCA,
	}
}

// splitHosts separates IP literals from DNS names
func splitHosts(hosts []string) (dns []string, ips []net.IP) {
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else if h != "" {
			dns = append(dns, h)
		}
	}
	return dns, ips
}
