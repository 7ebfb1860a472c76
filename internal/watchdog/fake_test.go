package watchdog

import (
	"context"
	"sync"
)

// manualSource is a Source driven by the test.
type manualSource struct {
	mu    sync.Mutex
	err   error
	calls int
	subs  []*manualSub
}

func (s *manualSource) Subscribe(_ context.Context, _ Target, _ Options) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	sub := &manualSub{
		notes:  make(chan Notification),
		errs:   make(chan error),
		closed: make(chan struct{}),
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *manualSource) last() *manualSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[len(s.subs)-1]
}

type manualSub struct {
	notes  chan Notification
	errs   chan error
	once   sync.Once
	closed chan struct{}
}

func (s *manualSub) Notifications() <-chan Notification { return s.notes }
func (s *manualSub) Errors() <-chan error               { return s.errs }

func (s *manualSub) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// push blocks until the notification is consumed; false when closed.
func (s *manualSub) push(n Notification) bool {
	select {
	case s.notes <- n:
		return true
	case <-s.closed:
		return false
	}
}

func (s *manualSub) fail(err error) bool {
	select {
	case s.errs <- err:
		return true
	case <-s.closed:
		return false
	}
}

// recorder collects events delivered to a listener.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
