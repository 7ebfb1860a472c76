package surface

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/starford/shiba/internal/apperr"
)

const (
	wsQueueSize    = 64
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 64 << 10
)

// WebSocket is a bidirectional Surface over a gorilla websocket connection.
// Outbound messages are queued and written by a single goroutine, so each
// connection sees them in Send order.
type WebSocket struct {
	Handlers

	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewWebSocket wraps an upgraded connection.
func NewWebSocket(conn *websocket.Conn, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &WebSocket{
		id:     id,
		conn:   conn,
		logger: logger.With(slog.String("surface", id)),
		out:    make(chan Message, wsQueueSize),
		done:   make(chan struct{}),
	}
}

// ID returns the surface id.
func (s *WebSocket) ID() string {
	return s.id
}

// Send queues msg for delivery.
func (s *WebSocket) Send(msg Message) error {
	if s.closed.Load() {
		return apperr.ErrSurfaceClosed
	}
	select {
	case s.out <- msg:
		return nil
	case <-s.done:
		return apperr.ErrSurfaceClosed
	default:
		return apperr.ErrSurfaceBusy
	}
}

// Deliver queues msg, waiting while the queue is full.
func (s *WebSocket) Deliver(ctx context.Context, msg Message) error {
	if s.closed.Load() {
		return apperr.ErrSurfaceClosed
	}
	select {
	case s.out <- msg:
		return nil
	case <-s.done:
		return apperr.ErrSurfaceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dispatches req to the registered handler.
func (s *WebSocket) Receive(req Request) bool {
	return s.Dispatch(s, req)
}

// Done is closed when the surface is closed.
func (s *WebSocket) Done() <-chan struct{} {
	return s.done
}

// Close shuts the connection down. Safe to call more than once.
func (s *WebSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// Run pumps the connection until it closes or ctx is cancelled. Inbound
// frames are decoded as Requests and dispatched on the reading goroutine.
func (s *WebSocket) Run(ctx context.Context) error {
	defer s.Close()

	s.conn.SetReadLimit(wsReadLimit)
	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	for {
		var req Request
		if err := s.conn.ReadJSON(&req); err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil
			}
			return err
		}
		if !s.Receive(req) {
			s.logger.Debug("surface: unhandled request", slog.String("type", string(req.Type)))
		}
	}
}

func (s *WebSocket) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				s.Close()
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("surface: write failed", slog.String("error", err.Error()))
				s.Close()
				return
			}
		}
	}
}
