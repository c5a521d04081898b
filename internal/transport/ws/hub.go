package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/telemetry"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID           string
	Conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// Hub tracks open connections.
type Hub struct {
	connections map[string]*Connection
	metrics     *telemetry.Metrics
	mu          sync.RWMutex
}

// NewHub creates a new Hub. metrics may be nil.
func NewHub(metrics *telemetry.Metrics) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		metrics:     metrics,
	}
}

// NewConnection wraps an upgraded socket.
func (h *Hub) NewConnection(ws *websocket.Conn, writeTimeout time.Duration) *Connection {
	return &Connection{
		ID:           uuid.New().String(),
		Conn:         ws,
		writeTimeout: writeTimeout,
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
	log.Debug().Str("conn_id", conn.ID).Msg("connection registered")
}

// Unregister removes a connection. Unknown connections are ignored.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	_, ok := h.connections[conn.ID]
	delete(h.connections, conn.ID)
	h.mu.Unlock()
	if ok {
		h.metrics.ConnectionClosed()
		log.Debug().Str("conn_id", conn.ID).Msg("connection unregistered")
	}
}

// Count returns the number of active connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Send writes msg as one JSON text frame. It returns after the frame is written.
func (c *Connection) Send(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.Conn.WriteMessage(messageType, data)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
