package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tilestrike/arena/internal/config"
)

// Handler processes decoded messages from a connection.
// Implementations dispatch on the message type and report connection loss.
type Handler interface {
	// Route handles one inbound message from the given connection.
	Route(connectionID, msgType string, data json.RawMessage)
	// Closed reports that the connection is gone.
	Closed(connectionID string)
}

// Server accepts WebSocket connections on an HTTP endpoint and dispatches
// each decoded frame to a Handler.
type Server struct {
	cfg     config.ServerConfig
	hub     *Hub
	handler Handler
	logger  *zap.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewServer creates a WebSocket server with the given configuration.
//
// Precondition: hub, handler, and logger must be non-nil.
// Postcondition: Returns a Server ready to be started with ListenAndServe.
func NewServer(cfg config.ServerConfig, hub *Hub, handler Handler, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		hub:     hub,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients connect from arbitrary origins; authentication is
			// handled upstream of this server.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
}

// ListenAndServe starts the HTTP listener and serves WebSocket upgrades
// until Stop is called. This method blocks until the server is stopped.
//
// Precondition: The server must not already be running.
// Postcondition: The listener is closed when this method returns.
func (s *Server) ListenAndServe() error {
	start := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleUpgrade)

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	s.httpSrv = &http.Server{Handler: mux}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("websocket server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Stop shuts down the listener and waits for connection goroutines to exit.
//
// Postcondition: All connection pumps have returned when this method returns.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	srv := s.httpSrv
	s.mu.Unlock()

	close(s.quit)
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("shutting down http server", zap.Error(err))
		}
	}
	s.wg.Wait()
	s.logger.Info("websocket server stopped")
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading connection",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	connectionID := uuid.NewString()
	client := newClient(connectionID, conn, s.cfg.OutboundBuffer)
	s.hub.register(client)

	s.logger.Info("connection established",
		zap.String("connection", connectionID),
		zap.String("remote", r.RemoteAddr),
	)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump(s.cfg.WriteTimeout, s.logger)
		_ = conn.Close()
	}()
	go func() {
		defer s.wg.Done()
		s.readPump(client)
	}()
}

// readPump decodes inbound frames until the connection drops, then tears
// the client down and notifies the handler exactly once.
func (s *Server) readPump(c *Client) {
	defer func() {
		s.hub.unregister(c.id)
		_ = c.conn.Close()
		s.handler.Closed(c.id)
		s.logger.Info("connection closed", zap.String("connection", c.id))
	}()

	if s.cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		if s.cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed",
					zap.String("connection", c.id),
					zap.Error(err),
				)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Debug("discarding malformed frame",
				zap.String("connection", c.id),
				zap.Error(err),
			)
			continue
		}
		if env.Type == "" {
			continue
		}

		s.handler.Route(c.id, env.Type, env.Data)
	}
}
