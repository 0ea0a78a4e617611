// Package api provides HTTP handlers for the collaborator endpoints the
// dashboard depends on: workspace files, command execution and transcripts.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdash/internal/execution"
	"github.com/ashureev/agentdash/internal/store"
)

const maxBodyBytes = 4 << 20

// Handler serves the file store, exec and transcript endpoints.
type Handler struct {
	files  store.FileStore
	chats  store.ChatStore
	exec   execution.Executor
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(files store.FileStore, chats store.ChatStore, exec execution.Executor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		files:  files,
		chats:  chats,
		exec:   exec,
		logger: logger,
	}
}

// RegisterRoutes mounts the collaborator endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/files", func(r chi.Router) {
		r.Get("/", h.HandleListFiles)
		r.Post("/", h.HandlePutFile)
		r.Get("/*", h.HandleGetFile)
	})
	r.Post("/api/exec", h.HandleExec)
	r.Route("/chats", func(r chi.Router) {
		r.Post("/", h.HandleCreateChat)
		r.Patch("/{id}", h.HandleUpdateChat)
		r.Get("/{id}", h.HandleGetChat)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// DecodeJSON reads a size-limited JSON body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
