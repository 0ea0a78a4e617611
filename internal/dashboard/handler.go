package dashboard

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdash/internal/api"
	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/identity"
	"github.com/ashureev/agentdash/internal/store"
)

// Handler exposes the dashboard over HTTP.
type Handler struct {
	reg   *Registry
	limit func(http.Handler) http.Handler
}

// NewHandler creates a dashboard handler. limit, if non-nil, wraps the
// prompt and fix endpoints.
func NewHandler(reg *Registry, limit func(http.Handler) http.Handler) *Handler {
	return &Handler{reg: reg, limit: limit}
}

// RegisterRoutes mounts the dashboard endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/dashboard", func(r chi.Router) {
		r.Get("/state", h.HandleState)
		r.Post("/mode", h.HandleMode)
		r.Post("/dependencies", h.HandleDependencies)
		r.Post("/transcript/{id}", h.HandleLoadTranscript)
		r.Group(func(r chi.Router) {
			if h.limit != nil {
				r.Use(h.limit)
			}
			r.Post("/prompt", h.HandlePrompt)
			r.Post("/fix", h.HandleFix)
		})
	})
}

// PromptRequest is the body of POST /api/dashboard/prompt.
type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// MessageResponse carries the id of the assistant message that will hold
// the reply.
type MessageResponse struct {
	MessageID int64 `json:"messageId"`
}

// ModeRequest is the body of POST /api/dashboard/mode.
type ModeRequest struct {
	Mode domain.Mode `json:"mode"`
}

// DependenciesRequest is the body of POST /api/dashboard/dependencies.
type DependenciesRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) service(r *http.Request) *Service {
	return h.reg.Get(identity.UserIDFromContext(r.Context()), identity.SessionIDFromContext(r.Context()))
}

// HandleState returns the dashboard snapshot.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.service(r).Snapshot())
}

// HandlePrompt submits a prompt.
func (h *Handler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	var req PromptRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.service(r).Submit(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	api.JSON(w, http.StatusAccepted, MessageResponse{MessageID: id})
}

// HandleMode switches the dashboard mode.
func (h *Handler) HandleMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	svc := h.service(r)
	if err := svc.SetMode(req.Mode); err != nil {
		writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, svc.Snapshot())
}

// HandleDependencies answers the pending install confirmation.
func (h *Handler) HandleDependencies(w http.ResponseWriter, r *http.Request) {
	var req DependenciesRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	svc := h.service(r)
	if err := svc.ResolveDependencyInstall(r.Context(), req.Confirm); err != nil {
		writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, svc.Snapshot())
}

// HandleFix regenerates the last artifact after a failed build.
func (h *Handler) HandleFix(w http.ResponseWriter, r *http.Request) {
	id, err := h.service(r).RequestFix(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	api.JSON(w, http.StatusAccepted, MessageResponse{MessageID: id})
}

// HandleLoadTranscript restores a persisted chat into the dashboard.
func (h *Handler) HandleLoadTranscript(w http.ResponseWriter, r *http.Request) {
	svc := h.service(r)
	if err := svc.LoadTranscript(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, svc.Snapshot())
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyPrompt), errors.Is(err, ErrInvalidMode):
		api.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNoPendingInstall), errors.Is(err, ErrNothingToFix), errors.Is(err, ErrClosed):
		api.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		api.Error(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, ErrNoTranscripts):
		api.Error(w, http.StatusNotImplemented, err.Error())
	default:
		slog.Error("Dashboard request failed", "error", err)
		api.Error(w, http.StatusInternalServerError, "internal error")
	}
}
