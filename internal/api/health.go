package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the server and its database are reachable.
type HealthHandler struct {
	db       Pinger
	provider string
	runtime  string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db Pinger, provider, runtime string) *HealthHandler {
	return &HealthHandler{db: db, provider: provider, runtime: runtime}
}

// RegisterHealth mounts GET /health.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.ServeHTTP)
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":   "ok",
		"textgen":  h.provider,
		"executor": h.runtime,
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	JSON(w, http.StatusOK, status)
}
