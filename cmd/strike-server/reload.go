package main

import (
	"fmt"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/server"
)

// reloadFunc re-reads the bootstrap file on SIGHUP. Only the log level and
// election timeouts take effect; membership and transport need a restart.
func reloadFunc(configPath, serverID, levelFlag string, state *cluster.ClusterState, logger logging.Logger) server.ConfigReloadFunc {
	return func() error {
		boot, err := cluster.LoadBootstrap(configPath)
		if err != nil {
			return err
		}

		cfg := boot.Config(serverID)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid election config: %w", err)
		}

		state.SetTimeouts(cfg.AnswerTimeout, cfg.CoordinatorAnnounceTimeout)
		if levelFlag == "" && boot.LogLevel != "" {
			logger.SetLevel(logging.ParseLevel(boot.LogLevel))
		}

		logger.Info("Election timeouts reloaded",
			logging.Duration("answer_timeout", cfg.AnswerTimeout),
			logging.Duration("coordinator_announce_timeout", cfg.CoordinatorAnnounceTimeout))
		return nil
	}
}
