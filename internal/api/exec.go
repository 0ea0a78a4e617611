package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ashureev/agentdash/internal/execution"
)

// HandleExec runs a command and streams its events as NDJSON, one record per
// line, flushing after each record.
func (h *Handler) HandleExec(w http.ResponseWriter, r *http.Request) {
	var cmd execution.Command
	if err := DecodeJSON(w, r, &cmd); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(cmd.Command) == "" {
		Error(w, http.StatusBadRequest, "command is required")
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev, err := range h.exec.Run(r.Context(), cmd) {
		if err != nil {
			msg := err.Error()
			if errors.Is(err, execution.ErrNotAllowed) {
				msg = "command not allowed: " + cmd.Command
			}
			ev = execution.Event{Type: execution.EventError, Message: msg}
		}
		if encErr := enc.Encode(ev); encErr != nil {
			h.logger.Debug("Exec stream client gone", "command", cmd.String(), "error", encErr)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if err != nil {
			return
		}
	}
}
