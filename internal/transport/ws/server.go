// Package ws provides the WebSocket endpoint for client sessions.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/session"
)

// Config holds connection timing and size limits.
type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
}

// MessageHandler handles one text frame. A returned error ends the connection.
type MessageHandler interface {
	HandleMessage(ctx context.Context, out session.Sender, data []byte) error
}

// Server handles WebSocket connections.
type Server struct {
	cfg      Config
	hub      *Hub
	handler  MessageHandler
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg Config, h *Hub, handler MessageHandler) *Server {
	return &Server{
		cfg:     cfg,
		hub:     h,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Desktop shell and local tools connect from arbitrary origins.
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request and runs the connection until it closes.
// Messages on one connection are handled strictly in order.
func (s *Server) HandleWebSocket(c echo.Context) error {
	socket, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("failed to upgrade websocket")
		return nil
	}

	conn := s.hub.NewConnection(socket, s.cfg.WriteTimeout)
	s.hub.Register(conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	defer func() {
		cancel()
		close(done)
		s.hub.Unregister(conn)
		conn.Close()
	}()

	if s.cfg.PingInterval > 0 {
		go s.pingLoop(conn, done)
	}

	log.Info().Str("conn_id", conn.ID).Str("remote", c.RealIP()).Msg("websocket connected")
	s.readLoop(ctx, conn)
	log.Info().Str("conn_id", conn.ID).Msg("websocket disconnected")
	return nil
}

func (s *Server) readLoop(ctx context.Context, conn *Connection) {
	if s.cfg.MaxMessageSize > 0 {
		conn.Conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	conn.Conn.SetPongHandler(func(string) error {
		s.extendReadDeadline(conn)
		return nil
	})

	for {
		s.extendReadDeadline(conn)
		msgType, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("conn_id", conn.ID).Msg("websocket read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			log.Debug().Str("conn_id", conn.ID).Int("frame", msgType).Msg("ignoring non-text frame")
			continue
		}

		if err := s.handler.HandleMessage(ctx, conn, data); err != nil {
			log.Warn().Err(err).Str("conn_id", conn.ID).Msg("closing connection after write failure")
			return
		}
	}
}

func (s *Server) extendReadDeadline(conn *Connection) {
	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
}

func (s *Server) pingLoop(conn *Connection, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					log.Debug().Err(err).Str("conn_id", conn.ID).Msg("ping failed")
				}
				return
			}
		}
	}
}
