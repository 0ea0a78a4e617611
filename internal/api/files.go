package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdash/internal/store"
)

// FilesResponse is the GET /api/files body.
type FilesResponse struct {
	Files    []string          `json:"files"`
	Contents map[string]string `json:"contents"`
}

// PutFileRequest is the POST /api/files body and response.
type PutFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// HandleListFiles returns every workspace path with its content.
func (h *Handler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.ListFiles(r.Context())
	if err != nil {
		h.logger.Error("Failed to list files", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	resp := FilesResponse{Files: make([]string, 0, len(files)), Contents: make(map[string]string, len(files))}
	for _, f := range files {
		resp.Files = append(resp.Files, f.Path)
		resp.Contents[f.Path] = f.Content
	}
	JSON(w, http.StatusOK, resp)
}

// HandleGetFile returns one workspace file addressed by the rest of the URL.
func (h *Handler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	p, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid path")
		return
	}
	f, err := h.files.GetFile(r.Context(), p)
	switch {
	case errors.Is(err, store.ErrInvalidPath):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "file not found")
		return
	case err != nil:
		h.logger.Error("Failed to read file", "path", p, "error", err)
		Error(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	JSON(w, http.StatusOK, PutFileRequest{Path: f.Path, Content: f.Content})
}

// HandlePutFile creates or replaces one workspace file.
func (h *Handler) HandlePutFile(w http.ResponseWriter, r *http.Request) {
	var req PutFileRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	f, err := h.files.PutFile(r.Context(), req.Path, req.Content)
	if errors.Is(err, store.ErrInvalidPath) {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to write file", "path", req.Path, "error", err)
		Error(w, http.StatusInternalServerError, "failed to write file")
		return
	}
	JSON(w, http.StatusOK, PutFileRequest{Path: f.Path, Content: f.Content})
}
