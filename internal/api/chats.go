package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/store"
)

// ChatRequest is the POST and PATCH /chats body. On PATCH, absent fields are
// left unchanged.
type ChatRequest struct {
	Title    *string              `json:"title,omitempty"`
	Messages []domain.ChatMessage `json:"messages,omitempty"`
}

// HandleCreateChat stores a new transcript.
func (h *Handler) HandleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	title := ""
	if req.Title != nil {
		title = *req.Title
	}
	chat, err := h.chats.CreateChat(r.Context(), title, req.Messages)
	if err != nil {
		h.logger.Error("Failed to create chat", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	JSON(w, http.StatusCreated, chat)
}

// HandleUpdateChat patches the title and/or messages of a transcript.
func (h *Handler) HandleUpdateChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ChatRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	chat, err := h.chats.UpdateChat(r.Context(), id, req.Title, req.Messages)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to update chat", "chat_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to update chat")
		return
	}
	JSON(w, http.StatusOK, chat)
}

// HandleGetChat returns a transcript with its messages.
func (h *Handler) HandleGetChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chat, err := h.chats.GetChat(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load chat", "chat_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if chat.Messages == nil {
		chat.Messages = []domain.ChatMessage{}
	}
	JSON(w, http.StatusOK, chat)
}
