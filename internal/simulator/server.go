package simulator

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server broadcasts generated readings to every connected WebSocket
// client, standing in for the sensor gateway during local runs.
type Server struct {
	generator *Generator
	interval  time.Duration
	upgrader  websocket.Upgrader
	logger    *log.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// ServerOptions contains configuration for creating a Server.
type ServerOptions struct {
	Generator *Generator
	Interval  time.Duration // Default: 1s between readings
	Logger    *log.Logger
}

// NewServer creates a new broadcast server.
func NewServer(opts ServerOptions) *Server {
	generator := opts.Generator
	if generator == nil {
		generator = New(Options{})
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		generator: generator,
		interval:  interval,
		logger:    logger,
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades requests to WebSocket and registers the client.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Printf("Upgrade failed: %v", err)
			return
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		s.logger.Printf("Client connected: %s", conn.RemoteAddr())

		// Discard client messages; drop the client on read error.
		go func() {
			defer s.drop(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// Run emits one reading per tick until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case now := <-ticker.C:
			msg := s.generator.Next(now)
			payload, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Marshal reading failed: %v", err)
				continue
			}
			s.broadcast(payload)
		}
	}
}

func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.logger.Printf("Write to %s failed, dropping client: %v", conn.RemoteAddr(), err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[conn]; ok {
		conn.Close()
		delete(s.clients, conn)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		delete(s.clients, conn)
	}
}
