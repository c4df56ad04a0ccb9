// ws/hub.go
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/event"
)

const (
	// writeWait bounds how long a slow subscriber can stall a write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// EventMessage is the JSON document pushed to subscribers when a
// detection is accepted for persistence. Photos stay out of the
// message; subscribers fetch them through the events API.
type EventMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data"`
	CreatedAt  time.Time      `json:"created_at"`
}

// client owns one subscriber connection. Pings and broadcasts come
// from different goroutines, so every write goes through mu.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// Hub manages WebSocket subscribers for real-time detection events.
type Hub struct {
	clients map[*client]bool
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		logger:  zap.L().Named("ws-hub"),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.logger.Info("subscriber registered", zap.Int("total", len(h.clients)))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		h.logger.Info("subscriber unregistered", zap.Int("total", len(h.clients)))
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every subscriber. Connections that
// fail the write are dropped.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(websocket.TextMessage, message); err != nil {
			h.logger.Debug("dropping subscriber after failed write", zap.Error(err))
			h.unregister(c)
			c.conn.Close()
		}
	}
}

// BroadcastRecord pushes an accepted detection to all subscribers.
func (h *Hub) BroadcastRecord(rec *event.Record) {
	if h.ClientCount() == 0 {
		return
	}

	data, err := json.Marshal(EventMessage{
		Type:       string(rec.Kind),
		ID:         rec.ID,
		Confidence: rec.Confidence,
		Data:       rec.Data,
		CreatedAt:  rec.CreatedAt,
	})
	if err != nil {
		h.logger.Warn("failed to marshal event message", zap.Error(err))
		return
	}
	h.Broadcast(data)
}
