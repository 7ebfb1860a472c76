// Package sse implements a Server-Sent Events surface: outbound messages
// stream over one HTTP response, inbound requests arrive via separate POSTs.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/starford/shiba/internal/apperr"
	"github.com/starford/shiba/internal/surface"
)

// EventSurface is the SSE event carrying the surface id, sent first so the
// client knows where to POST its requests.
const EventSurface = "surface"

const queueSize = 64

// Stream is a surface.Surface backed by an SSE response.
//
// Concurrency model: Send only enqueues; ServeHTTP is the single writer, so
// frames leave in Send order.
type Stream struct {
	surface.Handlers

	id     string
	logger *slog.Logger

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewStream creates an unattached stream.
func NewStream(logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Stream{
		id:     id,
		logger: logger.With(slog.String("surface", id)),
		out:    make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// ID returns the surface id.
func (s *Stream) ID() string {
	return s.id
}

// Send encodes msg as an SSE frame and queues it.
func (s *Stream) Send(msg surface.Message) error {
	if s.closed.Load() {
		return apperr.ErrSurfaceClosed
	}
	frame, err := encode(string(msg.Type), msg)
	if err != nil {
		return err
	}
	select {
	case s.out <- frame:
		return nil
	case <-s.done:
		return apperr.ErrSurfaceClosed
	default:
		// Client buffer full; report instead of blocking the sender.
		return apperr.ErrSurfaceBusy
	}
}

// Deliver encodes msg and queues it, waiting while the client is behind.
func (s *Stream) Deliver(ctx context.Context, msg surface.Message) error {
	if s.closed.Load() {
		return apperr.ErrSurfaceClosed
	}
	frame, err := encode(string(msg.Type), msg)
	if err != nil {
		return err
	}
	select {
	case s.out <- frame:
		return nil
	case <-s.done:
		return apperr.ErrSurfaceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dispatches an inbound request posted for this stream.
func (s *Stream) Receive(req surface.Request) bool {
	return s.Dispatch(s, req)
}

// Done is closed when the stream ends.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close ends the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
}

// ServeHTTP writes queued frames until the client disconnects or the stream
// is closed.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer s.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	hello, _ := encode(EventSurface, map[string]string{"id": s.id})
	_, _ = w.Write(hello)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case frame := <-s.out:
			if _, err := w.Write(frame); err != nil {
				s.logger.Warn("sse: write failed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		}
	}
}

func encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload)), nil
}
