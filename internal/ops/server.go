// Package ops exposes the operational HTTP surface: health, Prometheus
// metrics, and engine statistics.
package ops

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tinwell/asyncfetch/internal/engine"

	// Registers the fetch collectors with the default registry served
	// by /metrics.
	_ "github.com/tinwell/asyncfetch/internal/telemetry"
)

// StatsFunc supplies the current engine snapshot for /stats.
type StatsFunc func() engine.Stats

// Server serves the ops endpoints. It never touches the fetch data path.
type Server struct {
	router chi.Router
	stats  StatsFunc
	logger *zap.Logger
}

// NewServer constructs a Server around a stats provider.
func NewServer(stats StatsFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{stats: stats, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stats", s.getStats)
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving the ops endpoints on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("ops server listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ready"}
	if s.stats == nil || !s.stats().Initialized {
		status = http.StatusServiceUnavailable
		body["status"] = "engine not initialized"
	}
	s.writeJSON(w, status, body)
}

func (s *Server) getStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stats unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write ops response failed", zap.Error(err))
	}
}
