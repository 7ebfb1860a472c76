// Package surface models UI consumers: the messages sent to them, the
// requests they send back and the registry of those currently open.
package surface

import (
	"context"
	"sync"
)

// MessageType names an outbound message.
type MessageType string

// Outbound message types.
const (
	MessageWatchReady    MessageType = "watch-ready"
	MessageFileUpdate    MessageType = "file-update"
	MessageWatchError    MessageType = "watch-error"
	MessageConfigUpdated MessageType = "config-updated"
)

// Message is sent from the daemon to a surface.
type Message struct {
	Type    MessageType `json:"type"`
	WatchID string      `json:"watch_id,omitempty"`
	Path    string      `json:"path,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Error   string      `json:"error,omitempty"`
	Config  any         `json:"config,omitempty"`
}

// WatchReady builds a watch-ready message.
func WatchReady(watchID, target string) Message {
	return Message{Type: MessageWatchReady, WatchID: watchID, Path: target}
}

// FileUpdate builds a file-update message.
func FileUpdate(watchID, file, kind string) Message {
	return Message{Type: MessageFileUpdate, WatchID: watchID, Path: file, Kind: kind}
}

// WatchError builds a watch-error message.
func WatchError(watchID, msg string) Message {
	return Message{Type: MessageWatchError, WatchID: watchID, Error: msg}
}

// PathError builds a watch-error for a path that never got a watchdog. The
// caller supplies a fresh watch id; path echoes what the surface asked for.
func PathError(watchID, path, msg string) Message {
	return Message{Type: MessageWatchError, WatchID: watchID, Path: path, Error: msg}
}

// ConfigUpdated builds a config-updated message.
func ConfigUpdated(doc any) Message {
	return Message{Type: MessageConfigUpdated, Config: doc}
}

// RequestType names an inbound request.
type RequestType string

// RequestConfig asks for the current configuration document.
const RequestConfig RequestType = "request-config"

// Request is sent from a surface to the daemon.
type Request struct {
	Type RequestType `json:"type"`
}

// RequestHandler answers a request; replies go through s.Send.
type RequestHandler func(s Surface, req Request)

// Surface is a destination that receives messages and sends requests.
// Send and Deliver must preserve call order per surface.
type Surface interface {
	ID() string
	// Send queues msg without blocking; a full queue is reported as
	// apperr.ErrSurfaceBusy.
	Send(msg Message) error
	// Deliver queues msg, waiting for room until the surface closes
	// (apperr.ErrSurfaceClosed) or ctx ends.
	Deliver(ctx context.Context, msg Message) error
	// Handle registers h for t and returns a func that removes it.
	Handle(t RequestType, h RequestHandler) func()
	// Receive dispatches an inbound request; false when unhandled.
	Receive(req Request) bool
}

// Handlers is a concurrency-safe request handler table that Surface
// implementations embed.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[RequestType]handlerEntry
	nextID   uint64
}

type handlerEntry struct {
	id uint64
	fn RequestHandler
}

// Handle registers h for t, replacing any previous handler.
func (hs *Handlers) Handle(t RequestType, h RequestHandler) func() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.handlers == nil {
		hs.handlers = make(map[RequestType]handlerEntry)
	}
	hs.nextID++
	id := hs.nextID
	hs.handlers[t] = handlerEntry{id: id, fn: h}
	return func() {
		hs.mu.Lock()
		defer hs.mu.Unlock()
		if cur, ok := hs.handlers[t]; ok && cur.id == id {
			delete(hs.handlers, t)
		}
	}
}

// Dispatch invokes the handler for req on s.
func (hs *Handlers) Dispatch(s Surface, req Request) bool {
	hs.mu.RLock()
	entry, ok := hs.handlers[req.Type]
	hs.mu.RUnlock()
	if !ok {
		return false
	}
	entry.fn(s, req)
	return true
}
