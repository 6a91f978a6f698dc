// Package realtime fans domain events out to connected browsers over SSE.
// Events arrive via a Redis channel so clients attached to any instance see
// every update.
package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Event is one server-sent event.
type Event struct {
	Name string `json:"event"`
	Data string `json:"data"`
}

// Client is one connected SSE subscriber.
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub manages SSE client connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("sse client registered",
		zap.String("client", client.ID),
		zap.Int("total", len(h.clients)))
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered",
			zap.String("client", clientID),
			zap.Int("total", len(h.clients)))
	}
}

// Broadcast sends an event to every connected client. Slow clients with a
// full buffer are skipped rather than blocked on.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, dropping event", zap.String("client", client.ID))
		}
	}
}

// SendToUser sends an event only to clients authenticated as the given user.
func (h *Hub) SendToUser(userID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Events <- event:
		default:
			h.logger.Warn("sse client buffer full, dropping user event", zap.String("client", client.ID))
		}
	}
}
