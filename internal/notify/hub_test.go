package notify

import (
	"testing"

	"github.com/coder/websocket"
)

func TestHubRegister(t *testing.T) {
	h := NewHub()
	conn := &websocket.Conn{}

	h.Register("client-1", conn)

	if got := h.active["client-1"]; got != conn {
		t.Errorf("Expected connection %v, got %v", conn, got)
	}
	if h.Count() != 1 {
		t.Errorf("Expected 1 client, got %d", h.Count())
	}
}

func TestHubUnregister(t *testing.T) {
	h := NewHub()
	conn := &websocket.Conn{}

	h.Register("client-1", conn)
	h.Unregister("client-1", conn)

	if got := h.active["client-1"]; got != nil {
		t.Errorf("Expected nil connection, got %v", got)
	}
}

func TestHubUnregisterStale(t *testing.T) {
	h := NewHub()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	h.Register("client-1", conn1)
	h.Register("client-2", conn2)
	h.Unregister("client-2", conn1)

	if got := h.active["client-2"]; got != conn2 {
		t.Errorf("Expected connection %v, got %v", conn2, got)
	}
	if h.Count() != 2 {
		t.Errorf("Expected 2 clients, got %d", h.Count())
	}
}
