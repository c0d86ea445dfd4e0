package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-sqltemplate/internal/service"
)

// DomainLister reports the domains a renderer serves
type DomainLister interface {
	Domains() []service.DomainInfo
}

// HealthServer serves liveness, readiness and metrics for the worker process
type HealthServer struct {
	port        int
	redisClient *redis.Client
	domains     DomainLister
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
	server      *http.Server
}

// NewHealthServer creates a health server. Readiness requires Redis to answer
// and the catalog to hold at least one domain.
func NewHealthServer(
	port int,
	redisClient *redis.Client,
	domains DomainLister,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *HealthServer {
	return &HealthServer{
		port:        port,
		redisClient: redisClient,
		domains:     domains,
		gatherer:    gatherer,
		logger:      logger,
	}
}

// Handler returns the HTTP routes of the server
func (hs *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	mux.Handle("/metrics", promhttp.HandlerFor(hs.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start listens in the background
func (hs *HealthServer) Start() error {
	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hs.logger.Info("starting health server", zap.Int("port", hs.port))

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("health server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the server down, waiting up to five seconds
func (hs *HealthServer) Stop() error {
	if hs.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs.logger.Info("stopping health server")
	return hs.server.Shutdown(ctx)
}

// HealthResponse is the body of /health and /ready
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// check runs every dependency check and reports whether all passed
func (hs *HealthServer) check(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, 2)
	ok := true

	if err := hs.redisClient.Ping(ctx).Err(); err != nil {
		checks["redis"] = fmt.Sprintf("unhealthy: %v", err)
		ok = false
	} else {
		checks["redis"] = "healthy"
	}

	if hs.domains != nil {
		n := len(hs.domains.Domains())
		if n == 0 {
			checks["catalog"] = "unhealthy: no domains loaded"
			ok = false
		} else {
			checks["catalog"] = fmt.Sprintf("healthy: %d domains", n)
		}
	}

	return checks, ok
}

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks, ok := hs.check(ctx)
	if !ok {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	hs.respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Checks: checks})
}

func (hs *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, ok := hs.check(ctx); !ok {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not ready"})
		return
	}
	hs.respondJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
}

func (hs *HealthServer) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode response", zap.Error(err))
	}
}
