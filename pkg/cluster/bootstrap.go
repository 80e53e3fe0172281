package cluster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strikechat/strike-server/pkg/validation"
)

// BootstrapVersion is the bootstrap file format understood by this build
const BootstrapVersion = 1

// Bootstrap is the cluster.yaml file every server starts from
type Bootstrap struct {
	Version  int          `yaml:"version"`
	ServerID string       `yaml:"server_id"` // overridden by the -id flag
	Servers  []ServerInfo `yaml:"servers"`

	Election struct {
		AnswerTimeout              time.Duration `yaml:"answer_timeout"`
		CoordinatorAnnounceTimeout time.Duration `yaml:"coordinator_announce_timeout"`
		MaxRetries                 *int          `yaml:"max_retries"`
	} `yaml:"election"`

	FailureDetection struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		ProbeTimeout      time.Duration `yaml:"probe_timeout"`
		FailureThreshold  int           `yaml:"failure_threshold"`
		AutoFailover      *bool         `yaml:"auto_failover"`
	} `yaml:"failure_detection"`

	Transport  TransportSettings  `yaml:"transport"`
	TLS        TLSSettings        `yaml:"tls"`
	Management ManagementSettings `yaml:"management"`
	LogLevel   string             `yaml:"log_level"`
}

// TransportSettings selects how election messages travel between servers
type TransportSettings struct {
	Kind        string        `yaml:"kind"`         // mangos, nats, zmq
	NATSURL     string        `yaml:"nats_url"`     // nats only
	SendTimeout time.Duration `yaml:"send_timeout"` // per-peer send bound
}

// TLSSettings configures TLS on the management endpoint
type TLSSettings struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
	AutoGenerate       bool   `yaml:"auto_generate"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// ManagementSettings configures the HTTP endpoint for metrics and health
type ManagementSettings struct {
	HTTPAddr string `yaml:"http_addr"`
}

// Transport kinds
const (
	TransportMangos = "mangos"
	TransportNATS   = "nats"
	TransportZMQ    = "zmq"
)

// LoadBootstrap reads and validates a bootstrap file
func LoadBootstrap(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bootstrap file: %w", err)
	}
	return ParseBootstrap(data)
}

// ParseBootstrap decodes and validates bootstrap YAML. Unknown keys are rejected.
func ParseBootstrap(data []byte) (*Bootstrap, error) {
	var b Bootstrap
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse bootstrap file: %w", err)
	}

	if b.Transport.Kind == "" {
		b.Transport.Kind = TransportMangos
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks the server list and settings
func (b *Bootstrap) Validate() error {
	if b.Version != 0 && b.Version != BootstrapVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedBootstrapVer, b.Version)
	}

	v := validation.NewConfigValidator("bootstrap").
		Custom("servers", func() error {
			if len(b.Servers) == 0 {
				return errors.New("at least one server is required")
			}
			return nil
		}).
		OneOf("transport.kind", b.Transport.Kind, []string{TransportMangos, TransportNATS, TransportZMQ}).
		When(b.Transport.Kind == TransportNATS, func(v *validation.ConfigValidator) {
			v.Required("transport.nats_url", b.Transport.NATSURL)
		}).
		When(b.Transport.Kind == TransportZMQ, func(v *validation.ConfigValidator) {
			v.Custom("tls.enabled", func() error {
				if b.TLS.Enabled {
					return ErrZMQWithTLS
				}
				return nil
			})
		}).
		When(b.TLS.Enabled && !b.TLS.AutoGenerate, func(v *validation.ConfigValidator) {
			v.Required("tls.cert_file", b.TLS.CertFile).
				Required("tls.key_file", b.TLS.KeyFile)
		})

	seen := make(map[string]struct{}, len(b.Servers))
	for i, s := range b.Servers {
		field := fmt.Sprintf("servers[%d]", i)
		v.Required(field+".id", s.ServerID).
			Required(field+".address", s.Address).
			RangeInt(field+".management_port", s.ManagementPort, 1, 65535).
			RangeInt(field+".client_port", s.ClientPort, 0, 65535)

		if _, dup := seen[s.ServerID]; dup {
			v.Custom(field+".id", func() error { return fmt.Errorf("%w: %s", ErrDuplicateServerID, s.ServerID) })
		}
		seen[s.ServerID] = struct{}{}
	}

	return v.Validate()
}

// ResolveServerID returns override when set, otherwise the file's server_id
func (b *Bootstrap) ResolveServerID(override string) string {
	if override != "" {
		return override
	}
	return b.ServerID
}

// Config builds the election configuration for serverID from defaults and the file
func (b *Bootstrap) Config(serverID string) Config {
	cfg := DefaultConfig()
	cfg.ServerID = serverID

	cfg.AnswerTimeout = validation.DefaultOrDuration(b.Election.AnswerTimeout, cfg.AnswerTimeout)
	cfg.CoordinatorAnnounceTimeout = validation.DefaultOrDuration(b.Election.CoordinatorAnnounceTimeout, cfg.CoordinatorAnnounceTimeout)
	if b.Election.MaxRetries != nil {
		cfg.MaxElectionRetries = *b.Election.MaxRetries
	}

	cfg.HeartbeatInterval = validation.DefaultOrDuration(b.FailureDetection.HeartbeatInterval, cfg.HeartbeatInterval)
	cfg.ProbeTimeout = validation.DefaultOrDuration(b.FailureDetection.ProbeTimeout, cfg.ProbeTimeout)
	cfg.FailureThreshold = validation.DefaultOrInt(b.FailureDetection.FailureThreshold, cfg.FailureThreshold)
	if b.FailureDetection.AutoFailover != nil {
		cfg.EnableAutoFailover = *b.FailureDetection.AutoFailover
	}

	return cfg
}

// Apply registers every server with state and selects serverID as self
func (b *Bootstrap) Apply(state *ClusterState, serverID string) error {
	found := false
	for _, s := range b.Servers {
		if s.ServerID == serverID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSelfNotInBootstrap, serverID)
	}

	for _, s := range b.Servers {
		if err := state.AddMember(s); err != nil {
			return fmt.Errorf("failed to add server %s: %w", s.ServerID, err)
		}
	}
	return state.InitSelf(serverID)
}
