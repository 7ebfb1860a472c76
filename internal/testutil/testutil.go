// Package testutil provides shared test helpers: a temporary journal, a
// hand-driven watch source and a surface that records what it is sent.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/shiba/internal/history"
	"github.com/starford/shiba/internal/surface"
	"github.com/starford/shiba/internal/watchdog"
)

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary journal database that is automatically cleaned up.
func TestDB(t *testing.T) *history.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "shiba-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := history.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// Source is a watchdog.Source driven by the test.
type Source struct {
	mu   sync.Mutex
	err  error
	subs []*Subscription
}

// FailWith makes every following Subscribe fail with err.
func (s *Source) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Subscribe implements watchdog.Source.
func (s *Source) Subscribe(_ context.Context, target watchdog.Target, opts watchdog.Options) (watchdog.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	sub := &Subscription{
		Target:  target,
		Options: opts,
		notes:   make(chan watchdog.Notification),
		errs:    make(chan error),
		closed:  make(chan struct{}),
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// Subscriptions returns every subscription created so far.
func (s *Source) Subscriptions() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

// Last returns the most recent subscription, or nil.
func (s *Source) Last() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	return s.subs[len(s.subs)-1]
}

// Subscription is a hand-driven watchdog.Subscription.
type Subscription struct {
	Target  watchdog.Target
	Options watchdog.Options

	notes  chan watchdog.Notification
	errs   chan error
	once   sync.Once
	closed chan struct{}
}

// Notifications implements watchdog.Subscription.
func (s *Subscription) Notifications() <-chan watchdog.Notification { return s.notes }

// Errors implements watchdog.Subscription.
func (s *Subscription) Errors() <-chan error { return s.errs }

// Close implements watchdog.Subscription.
func (s *Subscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// Closed reports whether Close was called.
func (s *Subscription) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Push delivers a notification and blocks until the watchdog consumed it.
// It returns false once the subscription is closed.
func (s *Subscription) Push(path string, kind watchdog.Kind) bool {
	select {
	case s.notes <- watchdog.Notification{Path: path, Kind: kind}:
		return true
	case <-s.closed:
		return false
	}
}

// Fail delivers a runtime error.
func (s *Subscription) Fail(err error) bool {
	select {
	case s.errs <- err:
		return true
	case <-s.closed:
		return false
	}
}

// Surface records every message it is sent.
type Surface struct {
	surface.Handlers

	id      string
	mu      sync.Mutex
	msgs    []surface.Message
	sendErr error
}

// NewSurface creates a recording surface.
func NewSurface(id string) *Surface {
	return &Surface{id: id}
}

// ID implements surface.Surface.
func (s *Surface) ID() string { return s.id }

// Send implements surface.Surface.
func (s *Surface) Send(msg surface.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

// Deliver implements surface.Surface. The recording surface never fills up.
func (s *Surface) Deliver(_ context.Context, msg surface.Message) error {
	return s.Send(msg)
}

// Receive implements surface.Surface.
func (s *Surface) Receive(req surface.Request) bool {
	return s.Dispatch(s, req)
}

// FailSends makes every following Send return err.
func (s *Surface) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// Messages returns a copy of what was sent.
func (s *Surface) Messages() []surface.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]surface.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// OfType returns the sent messages of type t.
func (s *Surface) OfType(t surface.MessageType) []surface.Message {
	var out []surface.Message
	for _, m := range s.Messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}
