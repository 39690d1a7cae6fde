// Package notify pushes session views to UI clients over WebSocket.
package notify

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Hub tracks the connected UI clients.
type Hub struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]*websocket.Conn),
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

// Register adds a connection. A previous connection with the same id is
// closed.
func (h *Hub) Register(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.active[clientID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "client replaced")
	}
	h.active[clientID] = conn
	slog.Info("Session client registered", "client_id", clientID)
}

// Unregister removes conn if it is still the one registered for clientID.
func (h *Hub) Unregister(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.active[clientID]; ok && current == conn {
		delete(h.active, clientID)
		slog.Info("Session client unregistered", "client_id", clientID)
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.active {
		_ = conn.Close(websocket.StatusGoingAway, reason)
		slog.Info("Session client closed", "client_id", id)
	}
	h.active = make(map[string]*websocket.Conn)
}
