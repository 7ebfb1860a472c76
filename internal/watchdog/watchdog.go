package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/shiba/internal/apperr"
)

// State is the lifecycle state of a Watchdog.
type State int

// Watchdog states.
const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventType names one of the three lifecycle events.
type EventType string

// Event types.
const (
	EventReady  EventType = "ready"
	EventUpdate EventType = "update"
	EventError  EventType = "error"
)

// Event is delivered to listeners. Target is set for ready, File and Kind
// for update, Err for error.
type Event struct {
	Type    EventType
	WatchID string
	Target  string
	File    string
	Kind    Kind
	Err     error
}

// Listener receives events. Listeners run on the watchdog's delivery
// goroutine, one at a time, in subscription order. A listener must not call
// Stop on its own watchdog.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watchdog) {
		w.logger = logger
	}
}

// WithIgnoreInitial controls whether files present at start are reported.
func WithIgnoreInitial(ignore bool) Option {
	return func(w *Watchdog) {
		w.opts.IgnoreInitial = ignore
	}
}

// Watchdog owns a single Source subscription for one target.
//
// Start may succeed once. A failed Start or a runtime error leaves the
// watchdog Failed with no recovery; owners create a new Watchdog to retry.
// Runtime errors do not stop update delivery while the Source keeps
// producing notifications.
type Watchdog struct {
	id     string
	target Target
	source Source
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	listeners []listenerEntry
	nextID    uint64
	sub       Subscription
	stopCh    chan struct{}
	done      chan struct{} // closed when the delivery goroutine exits
}

// New creates an idle Watchdog. The id is fixed for its lifetime.
func New(source Source, target Target, opts ...Option) *Watchdog {
	w := &Watchdog{
		id:     uuid.NewString(),
		target: target,
		source: source,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// ID returns the watchdog id.
func (w *Watchdog) ID() string {
	return w.id
}

// Target returns the watch target.
func (w *Watchdog) Target() Target {
	return w.target
}

// State returns the current state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Subscribe registers fn and returns a func that removes it.
func (w *Watchdog) Subscribe(fn Listener) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.listeners = append(w.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, l := range w.listeners {
			if l.id == id {
				w.listeners = append(w.listeners[:i:i], w.listeners[i+1:]...)
				return
			}
		}
	}
}

// Start subscribes to the Source. On success the ready event is delivered
// before any update. A second Start fails with apperr.ErrAlreadyStarted and
// Start after Stop with apperr.ErrStopped. Setup failures wrap
// apperr.ErrWatchSetup and are not emitted as error events; the caller
// reports them.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateIdle:
	case StateStopped:
		w.mu.Unlock()
		return apperr.ErrStopped
	default:
		w.mu.Unlock()
		return apperr.ErrAlreadyStarted
	}
	w.state = StateStarting
	w.mu.Unlock()

	sub, err := w.source.Subscribe(ctx, w.target, w.opts)

	w.mu.Lock()
	if err != nil {
		if w.state == StateStarting {
			w.state = StateFailed
		}
		w.mu.Unlock()
		w.logger.Warn("watchdog: start failed",
			slog.String("id", w.id),
			slog.String("target", w.target.Path),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %s: %v", apperr.ErrWatchSetup, w.target.Path, err)
	}
	if w.state == StateStopped {
		w.mu.Unlock()
		_ = sub.Close()
		return apperr.ErrStopped
	}
	w.sub = sub
	w.state = StateReady
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go w.deliver(sub, done)
	return nil
}

// Stop releases the subscription. It is idempotent, safe before Start and
// guarantees that no listener runs after it returns.
func (w *Watchdog) Stop() error {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStopped
	close(w.stopCh)
	sub, done := w.sub, w.done
	w.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	if done != nil {
		<-done
	}
	w.logger.Debug("watchdog: stopped", slog.String("id", w.id))
	return err
}

func (w *Watchdog) deliver(sub Subscription, done chan struct{}) {
	defer close(done)

	w.emit(Event{Type: EventReady, WatchID: w.id, Target: w.target.Path})

	notes, errs := sub.Notifications(), sub.Errors()
	for notes != nil || errs != nil {
		select {
		case <-w.stopCh:
			return

		case n, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			w.emit(Event{Type: EventUpdate, WatchID: w.id, File: n.Path, Kind: n.Kind})

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.mu.Lock()
			if w.state == StateReady {
				w.state = StateFailed
			}
			w.mu.Unlock()
			w.emit(Event{Type: EventError, WatchID: w.id, Err: err})
		}
	}
	w.logger.Debug("watchdog: source closed", slog.String("id", w.id))
}

func (w *Watchdog) emit(ev Event) {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return
	}
	listeners := make([]listenerEntry, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	for _, l := range listeners {
		l.fn(ev)
	}
}
