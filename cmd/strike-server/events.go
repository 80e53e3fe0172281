package main

import (
	"context"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/pubsub"
)

// logEvents logs election events until ctx ends or events shuts down
func logEvents(ctx context.Context, events *pubsub.PubSub[cluster.Event], logger logging.Logger) error {
	sub, err := events.Subscribe(ctx, cluster.EventsTopic)
	if err != nil {
		return err
	}

	log := logger.With(logging.Component("events"))
	go func() {
		for ev := range sub.Channel() {
			switch ev.Type {
			case cluster.EventCoordinatorChanged:
				log.Info("Coordinator changed", logging.Coordinator(ev.Coordinator.ServerID))
			case cluster.EventElectionStarted:
				log.Info("Election started", logging.Attempt(ev.Attempt))
			case cluster.EventElectionStopped:
				log.Info("Election stopped")
			}
		}
		if n := sub.Dropped(); n > 0 {
			log.Warn("Election events dropped", logging.Uint64("dropped", n))
		}
	}()
	return nil
}
