// Package control implements the engine's HTTP control-plane adapter:
// health, stop, stats, and config inspection/reload, plus the Prometheus
// scrape route.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/purefinance/mmb/internal/config"
	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/risk"
)

// StatsProvider supplies the live counters the /stats route reports.
type StatsProvider interface {
	Stats() map[string]any
	CircuitBreakerStatuses() []risk.Status
}

// Server is the control-plane HTTP adapter.
type Server struct {
	cfg    *config.Config
	stats  StatsProvider
	logger logging.Logger
	http   *http.Server
	stop   context.CancelFunc
}

// NewServer builds a Server, mounting all routes on a chi router guarded by
// the configured CORS allow-list.
func NewServer(cfg *config.Config, stats StatsProvider, logger logging.Logger, stop context.CancelFunc) *Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Control.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
	}))

	s := &Server{cfg: cfg, stats: stats, logger: logger, stop: stop}

	r.Get("/health", s.handleHealth)
	r.Post("/stop", s.handleStop)
	r.Get("/stats", s.handleStats)
	r.Get("/config", s.handleGetConfig)
	r.Post("/config", s.handlePostConfig)
	r.Handle("/metrics", promHandler())

	s.http = &http.Server{
		Addr:    cfg.Control.ListenAddr,
		Handler: r,
	}
	return s
}

// Run starts the HTTP server and blocks until ctx is canceled, then
// gracefully shuts it down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("stop requested via control plane")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
	go s.stop()
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":            s.stats.Stats(),
		"circuit_breakers": s.stats.CircuitBreakerStatuses(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// Credentials live in internal/config.Credentials, resolved separately
	// from Config, so serializing Config here can never leak an API secret.
	writeJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	var incoming config.Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := incoming.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	*s.cfg = incoming
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
