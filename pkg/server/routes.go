package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/strikechat/strike-server/pkg/cluster"
	"github.com/strikechat/strike-server/pkg/health"
	"github.com/strikechat/strike-server/pkg/logging"
	"github.com/strikechat/strike-server/pkg/metrics"
)

// ClusterView exposes the state served on /cluster
type ClusterView interface {
	Snapshot() cluster.StateSnapshot
}

// ElectionTrigger starts an election on operator request
type ElectionTrigger interface {
	StartElection(ctx context.Context) error
}

// Routes are the components behind the management endpoints. Nil fields
// leave their endpoints unregistered.
type Routes struct {
	Cluster  ClusterView
	Election ElectionTrigger
	Health   *health.HealthChecker
	Metrics  *metrics.Registry
	Logger   logging.Logger

	// ElectionTimeout bounds a POST /cluster/election request
	ElectionTimeout time.Duration
}

// NewManagementMux builds the management HTTP handler
func NewManagementMux(r Routes) *http.ServeMux {
	if r.Logger == nil {
		r.Logger = logging.NewNopLogger()
	}
	if r.ElectionTimeout <= 0 {
		r.ElectionTimeout = 5 * time.Second
	}

	mux := http.NewServeMux()
	if r.Metrics != nil {
		handler := r.Metrics.Handler()
		mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, req *http.Request) {
			r.Metrics.UpdateSystemMetrics()
			handler.ServeHTTP(w, req)
		})
	}
	if r.Health != nil {
		mux.Handle("GET /health", r.Health.HTTPHandler())
		mux.Handle("GET /health/ready", r.Health.ReadinessHandler())
		mux.Handle("GET /health/live", r.Health.LivenessHandler())
	}
	if r.Cluster != nil {
		mux.HandleFunc("GET /cluster", r.handleCluster)
	}
	if r.Election != nil {
		mux.HandleFunc("POST /cluster/election", r.handleStartElection)
	}
	return mux
}

func (r Routes) handleCluster(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.Cluster.Snapshot())
}

func (r Routes) handleStartElection(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), r.ElectionTimeout)
	defer cancel()

	r.Logger.Info("Election requested via management API",
		logging.String("remote", req.RemoteAddr))
	if err := r.Election.StartElection(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "election started"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
