package server

import (
	"context"
	"net/http"
	"time"

	"ddnet-tracker/internal/metrics"
	"ddnet-tracker/internal/redis"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/auth/register", s.rateLimit(s.registerHandler))
	mux.HandleFunc("POST /api/auth/login", s.rateLimit(s.loginHandler))
	mux.HandleFunc("POST /api/auth/logout", s.logoutHandler)
	mux.HandleFunc("GET /api/auth/me", s.meHandler)

	// Admin
	mux.HandleFunc("GET /api/admin/users", s.requireAdmin(s.listUsersHandler))
	mux.HandleFunc("GET /api/admin/settings", s.getSettingsHandler)
	mux.HandleFunc("PUT /api/admin/settings", s.requireAdmin(s.updateSettingsHandler))

	// Tools
	mux.HandleFunc("GET /api/tools", s.listToolsHandler)
	mux.HandleFunc("GET /api/tools/player-tracker", s.requireUser(s.listPlayersHandler))
	mux.HandleFunc("POST /api/tools/player-tracker", s.requireUser(s.addPlayerHandler))
	mux.HandleFunc("DELETE /api/tools/player-tracker", s.requireUser(s.clearPlayersHandler))
	mux.HandleFunc("GET /api/tools/player-tracker/status", s.requireUser(s.playerStatusHandler))
	mux.HandleFunc("GET /api/tools/player-tracker/lookup", s.lookupHandler)
	mux.HandleFunc("GET /api/tools/player-tracker/live", s.requireUser(s.liveHandler))
	mux.HandleFunc("PATCH /api/tools/player-tracker/{id}", s.requireUser(s.updatePlayerHandler))
	mux.HandleFunc("DELETE /api/tools/player-tracker/{id}", s.requireUser(s.deletePlayerHandler))

	// Operations
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler(s.registry))

	// The metrics middleware reads r.Pattern, which the mux sets on the
	// request it was handed, so it wraps the mux directly.
	var handler http.Handler = s.httpMetrics.Middleware(mux)
	handler = s.corsMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return s.loggingMiddleware(handler)
}

// healthHandler reports the database and, when configured, redis. Any
// component down turns the response into a 503.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "up",
		Components: make(map[string]map[string]string),
	}

	if s.db != nil {
		resp.Components["database"] = s.db.Health()
	}
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		resp.Components["redis"] = redis.Health(ctx, s.redis)
		cancel()
	}

	status := http.StatusOK
	for _, c := range resp.Components {
		if c["status"] != "up" {
			resp.Status = "down"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}
