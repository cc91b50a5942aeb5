package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fujitsud/internal/config"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports a component problem as a non-nil error.
type HealthCheck func(ctx context.Context) error

// HealthService provides HTTP health check endpoints.
type HealthService struct {
	cfg    *config.Config
	ready  func() bool
	server *http.Server

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHealthService creates a new HealthService. ready gates /ready.
func NewHealthService(cfg *config.Config, ready func() bool) *HealthService {
	return &HealthService{
		cfg:    cfg,
		ready:  ready,
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers a component reported by /health.
func (s *HealthService) AddCheck(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler returns the /health and /ready routes.
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness plus component status; degraded components do not fail it.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		components, healthy := s.runChecks(ctx)
		status := "healthy"
		if !healthy {
			status = "degraded"
		}
		writeHealth(w, http.StatusOK, map[string]any{"status": status, "components": components})
	})

	// Ready once the heat pump completed its handshake.
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.ready != nil && !s.ready() {
			writeHealth(w, http.StatusServiceUnavailable, map[string]any{"status": "unbound"})
			return
		}
		writeHealth(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	return mux
}

func (s *HealthService) runChecks(ctx context.Context) (map[string]string, bool) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]HealthCheck, len(names))
	for i, name := range names {
		checks[i] = s.checks[name]
	}
	s.mu.RUnlock()

	components := make(map[string]string, len(names))
	healthy := true
	for i, name := range names {
		if err := checks[i](ctx); err != nil {
			components[name] = err.Error()
			healthy = false
			continue
		}
		components[name] = "ok"
	}
	return components, healthy
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeHealth(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
