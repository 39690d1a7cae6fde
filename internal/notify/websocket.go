package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/coursegpt-sync/internal/session"
)

// Source is what the handler streams from.
type Source interface {
	View() session.View
	Subscribe() (<-chan struct{}, func())
}

// Handler upgrades requests to WebSocket and streams session views: the
// current view on connect, then a fresh one after every change.
type Handler struct {
	source        Source
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket handler.
func NewHandler(source Source, hub *Hub, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		source:        source,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// Message is the envelope sent to and received from clients.
type Message struct {
	Type string        `json:"type"`
	View *session.View `json:"view,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	clientID := uuid.NewString()
	h.hub.Register(clientID, ws)
	defer h.hub.Unregister(clientID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changes, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	go func() {
		defer cancel()
		h.readLoop(ctx, ws, clientID)
	}()

	var sent uint64
	push := func() bool {
		v := h.source.View()
		if sent != 0 && v.Version == sent {
			return true
		}
		if err := writeJSON(ctx, ws, Message{Type: "view", View: &v}); err != nil {
			slog.Debug("Failed to push view", "client_id", clientID, "error", err)
			return false
		}
		sent = v.Version
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if !push() {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, clientID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "client_id", clientID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "client_id", clientID)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Ignoring malformed client message", "client_id", clientID)
			continue
		}
		if msg.Type == "ping" {
			if err := writeJSON(ctx, ws, Message{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
