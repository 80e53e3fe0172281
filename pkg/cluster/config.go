package cluster

import (
	"time"

	"github.com/strikechat/strike-server/pkg/validation"
)

// Config defines configuration for leader election and failure detection
type Config struct {
	// Server identification
	ServerID string // Must match one entry of the bootstrap server list

	// Election timing
	AnswerTimeout              time.Duration // Wait for ELECTION_ANSWER from a senior peer (default: 3s)
	CoordinatorAnnounceTimeout time.Duration // Wait for SET_COORDINATOR after an answer (default: 6s)
	MaxElectionRetries         int           // Coordinator timeouts tolerated before unprobed candidates are skipped

	// Failure detection
	ProbeTimeout       time.Duration // Bound on a single liveness probe (default: 5s)
	HeartbeatInterval  time.Duration // Interval between coordinator probes (default: 2s)
	FailureThreshold   int           // Consecutive failed probes before starting an election
	EnableAutoFailover bool          // Run the monitor loop (default: true)
}

// DefaultConfig returns a safe default configuration
func DefaultConfig() Config {
	return Config{
		AnswerTimeout:              3 * time.Second,
		CoordinatorAnnounceTimeout: 6 * time.Second,
		MaxElectionRetries:         3,
		ProbeTimeout:               5 * time.Second,
		HeartbeatInterval:          2 * time.Second,
		FailureThreshold:           3,
		EnableAutoFailover:         true,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.ServerID == "" {
		return ErrInvalidServerID
	}
	if c.AnswerTimeout <= 0 {
		return ErrAnswerTimeoutTooSmall
	}

	return validation.NewConfigValidator("cluster").
		MinDuration("coordinator_announce_timeout", c.CoordinatorAnnounceTimeout, c.AnswerTimeout).
		RequiredDuration("probe_timeout", c.ProbeTimeout).
		NonNegative("max_election_retries", c.MaxElectionRetries).
		When(c.EnableAutoFailover, func(v *validation.ConfigValidator) {
			v.RequiredDuration("heartbeat_interval", c.HeartbeatInterval).
				Positive("failure_threshold", c.FailureThreshold)
		}).
		Validate()
}
