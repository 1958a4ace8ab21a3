package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"coursechat/internal/database"
	"coursechat/internal/registry"
)

// Server exposes the operational endpoints: a health check covering the
// database and the live-connection counters. Resource CRUD lives in the
// external API layer, not here.
type Server struct {
	db       *database.Manager
	registry *registry.Registry
	log      *slog.Logger
}

// NewServer creates the operational endpoint server.
func NewServer(db *database.Manager, reg *registry.Registry, log *slog.Logger) *Server {
	return &Server{db: db, registry: reg, log: log}
}

// HandleHealth serves GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := http.StatusOK
	dbStatus := "ok"
	if err := s.db.HealthCheck(r.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		status = http.StatusServiceUnavailable
		dbStatus = "unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   dbStatus,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"registry": s.registry.Stats(),
	})
}
