package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/strikechat/strike-server/pkg/logging"
)

// ConfigReloadFunc is a function that reloads configuration
type ConfigReloadFunc func() error

// GracefulServer wraps the management HTTP server with graceful shutdown
// and SIGHUP reload
type GracefulServer struct {
	server         *http.Server
	listener       net.Listener
	logger         logging.Logger
	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	configReloadFn ConfigReloadFunc
	configMu       sync.RWMutex
}

// NewGracefulServer creates a management server. tlsConfig may be nil.
func NewGracefulServer(addr string, handler http.Handler, tlsConfig *tls.Config, logger logging.Logger) *GracefulServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger:     logger.With(logging.Component("http")),
		shutdownCh: make(chan struct{}),
	}
}

// Listen binds the server address. Start calls it when needed.
func (gs *GracefulServer) Listen() error {
	if gs.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return err
	}
	if gs.server.TLSConfig != nil {
		ln = tls.NewListener(ln, gs.server.TLSConfig)
	}
	gs.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen
func (gs *GracefulServer) Addr() net.Addr {
	if gs.listener == nil {
		return nil
	}
	return gs.listener.Addr()
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (gs *GracefulServer) Start() error {
	if err := gs.Listen(); err != nil {
		return err
	}

	gs.logger.Info("Starting management server",
		logging.String("addr", gs.listener.Addr().String()),
		logging.Bool("tls", gs.server.TLSConfig != nil))
	if err := gs.server.Serve(gs.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown initiates a graceful shutdown
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	var err error
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("Initiating graceful shutdown", logging.Duration("timeout", timeout))

		if shutdownErr := gs.server.Shutdown(ctx); shutdownErr != nil {
			err = shutdownErr
			gs.logger.Error("Error during shutdown", logging.Error(shutdownErr))
		} else {
			gs.logger.Info("Management server shutdown complete")
		}
	})
	return err
}

// WaitForSignal blocks until SIGINT or SIGTERM arrives or ctx ends,
// running the reload function on every SIGHUP
func (gs *GracefulServer) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	return gs.handleSignals(ctx, sigCh)
}

func (gs *GracefulServer) handleSignals(ctx context.Context, sigCh <-chan os.Signal) os.Signal {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gs.shutdownCh:
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				gs.logger.Info("Received SIGHUP, reloading configuration")
				_ = gs.ReloadConfig()
				continue
			}
			gs.logger.Info("Received shutdown signal", logging.String("signal", sig.String()))
			return sig
		}
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown is initiated
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

// SetConfigReloadFunc sets the function to call when configuration reload is triggered
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig triggers a configuration reload
func (gs *GracefulServer) ReloadConfig() error {
	gs.configMu.RLock()
	reloadFn := gs.configReloadFn
	gs.configMu.RUnlock()

	if reloadFn == nil {
		gs.logger.Warn("Configuration reload requested, but no reload function configured")
		return nil
	}

	if err := reloadFn(); err != nil {
		gs.logger.Error("Configuration reload failed", logging.Error(err))
		return err
	}

	gs.logger.Info("Configuration reload complete")
	return nil
}
