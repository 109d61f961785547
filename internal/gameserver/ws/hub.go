package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub tracks all connected clients and delivers addressed events. It
// implements the Sender interface the registries broadcast through.
// All methods are safe for concurrent use and never block on a slow client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewHub creates an empty Hub.
//
// Precondition: logger must be non-nil.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// register adds a client to the hub.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister removes and closes a client.
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Send marshals an event envelope and queues it for the connection. Unknown
// connections are ignored; a full outbound buffer drops the event with a
// log line instead of blocking the caller.
func (h *Hub) Send(connectionID, event string, payload any) {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshalling event payload",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	frame, err := json.Marshal(Envelope{Type: event, Data: data})
	if err != nil {
		h.logger.Error("marshalling event envelope",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	if err := c.push(frame); err != nil {
		h.logger.Warn("dropping event",
			zap.String("connection", connectionID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
