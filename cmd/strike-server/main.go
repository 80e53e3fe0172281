package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/health"
	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
	"github.com/strikechat/strike-server/pkg/peer"
	"github.com/strikechat/strike-server/pkg/pubsub"
	"github.com/strikechat/strike-server/pkg/scheduler"
	"github.com/strikechat/strike-server/pkg/server"
	strtls "github.com/strikechat/strike-server/pkg/tls"
)

const (
	shutdownTimeout     = 10 * time.Second
	defaultHTTPAddr     = ":8090"
	certExpiryWarning   = 14 * 24 * time.Hour
	electionStallFactor = 4
)

func main() {
	configPath := flag.String("config", "cluster.yaml", "Path to the cluster bootstrap file")
	serverID := flag.String("id", "", "Server ID (overrides server_id in the bootstrap file)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides log_level)")
	flag.Parse()

	if err := run(*configPath, *serverID, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "strike-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, idFlag, levelFlag string) error {
	boot, err := cluster.LoadBootstrap(configPath)
	if err != nil {
		return err
	}

	level := boot.LogLevel
	if levelFlag != "" {
		level = levelFlag
	}
	serverID := boot.ResolveServerID(idFlag)

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(level)).
		With(logging.ServerID(serverID))
	logging.SetDefaultLogger(logger)

	cfg := boot.Config(serverID)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid election config: %w", err)
	}

	cleanup := server.NewResourceCleanup(logger)
	defer cleanup.Cleanup()

	reg := metrics.DefaultRegistry()
	state := cluster.NewClusterStateWithMetrics(cfg, reg)
	if err := boot.Apply(state, serverID); err != nil {
		return err
	}
	self, _ := state.Self()

	tlsPair, err := strtls.Load(tlsConfig(boot.TLS, self))
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.WithLogger(logger), scheduler.WithMetrics(reg))
	cleanup.AddFunc("scheduler", func() error {
		sched.Close()
		return nil
	})

	opts := peer.Options{
		Kind:         boot.Transport.Kind,
		Self:         self,
		NATSURL:      boot.Transport.NATSURL,
		SendTimeout:  boot.Transport.SendTimeout,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       logger,
		Metrics:      reg,
	}
	if tlsPair != nil {
		opts.ClientTLS = tlsPair.Client
		opts.ServerTLS = tlsPair.Server
	}
	transport, err := peer.NewTransport(opts)
	if err != nil {
		return err
	}
	cleanup.Add(transport, "transport")

	events := pubsub.NewPubSub[cluster.Event]()
	cleanup.AddFunc("events", func() error {
		events.Shutdown()
		return nil
	})

	coord := cluster.NewElectionCoordinator(state, sched, transport.Messenger, cfg,
		cluster.WithProber(transport.Prober),
		cluster.WithEvents(events),
		cluster.WithLogger(logger),
		cluster.WithMetrics(reg),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := logEvents(ctx, events, logger); err != nil {
		return err
	}

	if err := transport.Serve(coord, logger); err != nil {
		return fmt.Errorf("failed to start peer listener: %w", err)
	}

	hc := newHealthChecker(state, cfg, tlsPair)
	httpAddr := boot.Management.HTTPAddr
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}
	mux := server.NewManagementMux(server.Routes{
		Cluster:  state,
		Election: coord,
		Health:   hc,
		Metrics:  reg,
		Logger:   logger,
	})

	gs := server.NewGracefulServer(httpAddr, mux, managementTLS(tlsPair), logger)
	gs.SetConfigReloadFunc(reloadFunc(configPath, serverID, levelFlag, state, logger))
	if err := gs.Listen(); err != nil {
		return fmt.Errorf("failed to bind management server: %w", err)
	}
	cleanup.AddFunc("http", func() error { return gs.Shutdown(shutdownTimeout) })

	go func() {
		if err := gs.Start(); err != nil {
			logger.Error("Management server failed", logging.Error(err))
			cancel()
		}
	}()

	monitor := cluster.NewMonitor(coord, transport.Prober, cfg, logger)
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	cleanup.AddFunc("monitor", func() error {
		monitor.Stop()
		return nil
	})

	logger.Info("strike-server started",
		logging.String("transport", opts.Kind),
		logging.String("management", self.ManagementAddr()),
		logging.Count(len(state.Members())))

	if err := coord.StartElection(ctx); err != nil {
		logger.Error("Initial election failed", logging.Error(err))
	}

	sig := gs.WaitForSignal(ctx)
	if sig != nil {
		logger.Info("Shutting down", logging.String("signal", sig.String()))
	}
	cancel()

	coord.StopElection()
	return cleanup.CloseAll()
}

func tlsConfig(settings cluster.TLSSettings, self cluster.ServerInfo) *strtls.Config {
	cfg := strtls.DefaultConfig()
	cfg.Enabled = settings.Enabled
	cfg.CertFile = settings.CertFile
	cfg.KeyFile = settings.KeyFile
	cfg.CAFile = settings.CAFile
	cfg.AutoGenerate = settings.AutoGenerate
	cfg.InsecureSkipVerify = settings.InsecureSkipVerify
	cfg.Hosts = append(cfg.Hosts, self.Address)
	return cfg
}

// managementTLS lets scrapers without a client certificate reach the HTTP
// endpoint while peers still present one
func managementTLS(pair *strtls.Pair) *tls.Config {
	if pair == nil {
		return nil
	}
	cfg := pair.Server.Clone()
	if cfg.ClientAuth == tls.RequireAndVerifyClientCert {
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return cfg
}

func newHealthChecker(state *cluster.ClusterState, cfg cluster.Config, pair *strtls.Pair) *health.HealthChecker {
	hc := health.NewHealthChecker()

	stall := electionStallFactor * (cfg.AnswerTimeout + cfg.CoordinatorAnnounceTimeout)
	hc.RegisterCheck("coordinator", health.CoordinatorCheck(state))
	hc.RegisterCheck("election", health.ElectionStallCheck(state, stall))
	hc.RegisterCheck("membership", health.MembershipCheck(state))
	if pair != nil {
		hc.RegisterCheck("certificate", health.CertificateExpiryCheck(func() (*strtls.CertificateInfo, error) {
			return strtls.LeafInfo(pair.Server)
		}, certExpiryWarning))
	}

	hc.RegisterReadinessCheck("coordinator", health.CoordinatorCheck(state))
	hc.RegisterReadinessCheck("election", health.ElectionStallCheck(state, stall))

	hc.RegisterLivenessCheck("memory", health.MemoryCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc, m.Sys
	}))
	return hc
}
