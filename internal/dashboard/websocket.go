package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/agentdash/internal/identity"
)

const wsWriteTimeout = 5 * time.Second

// WebSocketHandler pushes a snapshot to the browser after every change.
type WebSocketHandler struct {
	reg            *Registry
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a snapshot push handler.
func NewWebSocketHandler(reg *Registry, allowedOrigins []string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{reg: reg, allowedOrigins: allowedOrigins, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "dashboard closed"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	svc := h.reg.Get(userID, sessionID)
	changes, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	// The client never sends; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := ws.CloseRead(r.Context())
	slog.Info("Dashboard stream opened", "user_id", userID, "session_id", sessionID)

	if err := writeJSON(ctx, ws, svc.Snapshot()); err != nil {
		slog.Debug("Failed to send initial snapshot", "error", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dashboard stream closed", "user_id", userID, "session_id", sessionID)
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := writeJSON(ctx, ws, svc.Snapshot()); err != nil {
				slog.Debug("Failed to push snapshot", "error", err, "user_id", userID)
				return
			}
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
