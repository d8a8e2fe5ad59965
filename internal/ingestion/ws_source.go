package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures WebSocket source behavior.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
	// Buffer is the subscription channel capacity.
	Buffer int
}

// DefaultWSConfig returns the default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       60 * time.Second,
		Buffer:            1024,
	}
}

// WSSource subscribes to the sensor gateway's WebSocket feed. The read
// loop reconnects with exponential backoff until Close or context
// cancellation.
type WSSource struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup

	subscribed atomic.Bool
}

// NewWSSource creates a WebSocket source for the given endpoint.
func NewWSSource(endpoint string, config *WSConfig, logger *log.Logger) (*WSSource, error) {
	if endpoint == "" {
		return nil, errors.New("ingestion: endpoint is required")
	}

	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	return &WSSource{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Compile-time interface check.
var _ Source = (*WSSource)(nil)

// Subscribe connects and starts the read loop. Only one subscription
// per source is supported.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan []byte, error) {
	if s.closed.Load() {
		return nil, errors.New("ingestion: source closed")
	}
	if s.subscribed.Swap(true) {
		return nil, errors.New("ingestion: already subscribed")
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	ch := make(chan []byte, s.config.Buffer)

	s.wg.Add(1)
	go s.readLoop(ctx, ch)

	return ch, nil
}

func (s *WSSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.config.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *WSSource) readLoop(ctx context.Context, ch chan<- []byte) {
	defer s.wg.Done()
	defer close(ch)

	reconnectDelay := s.config.ReconnectDelay

	for {
		if s.closed.Load() || ctx.Err() != nil {
			return
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.waitAndReconnect(ctx, &reconnectDelay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				return
			}

			s.logger.Printf("WebSocket read failed, reconnecting: %v", err)
			s.dropConn()

			if !s.waitAndReconnect(ctx, &reconnectDelay) {
				return
			}
			continue
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		select {
		case ch <- message:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// waitAndReconnect sleeps for the backoff delay and redials. Returns
// false when the source should stop.
func (s *WSSource) waitAndReconnect(ctx context.Context, delay *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	case <-time.After(*delay):
	}

	*delay *= 2
	if *delay > s.config.MaxReconnectDelay {
		*delay = s.config.MaxReconnectDelay
	}

	if err := s.connect(ctx); err != nil {
		s.logger.Printf("Reconnect failed: %v", err)
		return !s.closed.Load() && ctx.Err() == nil
	}
	return true
}

func (s *WSSource) dropConn() {
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

// Close shuts the source down and waits for the read loop to exit.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}
