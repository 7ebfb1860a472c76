package surface

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubSurface struct {
	Handlers
	id   string
	err  error
	mu   sync.Mutex
	sent []Message
}

func (s *stubSurface) ID() string { return s.id }

func (s *stubSurface) Send(msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

func (s *stubSurface) Deliver(_ context.Context, msg Message) error { return s.Send(msg) }

func (s *stubSurface) Receive(req Request) bool { return s.Dispatch(s, req) }

func TestRegistry_AddRemoveOrder(t *testing.T) {
	r := NewRegistry()
	a, b, c := &stubSurface{id: "a"}, &stubSurface{id: "b"}, &stubSurface{id: "c"}
	r.Add(a)
	r.Add(b)
	r.Add(c)
	r.Add(a)

	if got := r.IDs(); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("ids = %v", got)
	}

	r.Remove("b")
	r.Remove("missing")
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	if _, ok := r.Get("b"); ok {
		t.Error("b should be gone")
	}
	if s, ok := r.Get("c"); !ok || s != c {
		t.Error("c should be present")
	}
}

func TestRegistry_BroadcastOncePerSurface(t *testing.T) {
	r := NewRegistry()
	a, b := &stubSurface{id: "a"}, &stubSurface{id: "b"}
	r.Add(a)
	r.Add(b)

	sent, err := r.Broadcast(ConfigUpdated(map[string]any{"width": 1}))
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}
	for _, s := range []*stubSurface{a, b} {
		if len(s.sent) != 1 || s.sent[0].Type != MessageConfigUpdated {
			t.Errorf("surface %s got %v", s.id, s.sent)
		}
	}
}

func TestRegistry_BroadcastCollectsFailures(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Add(&stubSurface{id: "ok"})
	r.Add(&stubSurface{id: "bad", err: boom})

	sent, err := r.Broadcast(WatchError("w", "x"))
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRegistry_BroadcastEmpty(t *testing.T) {
	sent, err := NewRegistry().Broadcast(ConfigUpdated(nil))
	if sent != 0 || err != nil {
		t.Errorf("sent=%d err=%v", sent, err)
	}
}

func TestHandlers_DispatchAndRemove(t *testing.T) {
	s := &stubSurface{id: "a"}
	calls := 0
	remove := s.Handle(RequestConfig, func(dest Surface, req Request) {
		calls++
		if dest != s {
			t.Error("handler got wrong surface")
		}
	})

	if !s.Receive(Request{Type: RequestConfig}) {
		t.Fatal("request should be handled")
	}
	if s.Receive(Request{Type: "unknown"}) {
		t.Error("unknown request should not be handled")
	}
	remove()
	if s.Receive(Request{Type: RequestConfig}) {
		t.Error("removed handler still invoked")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestHandlers_StaleRemoveKeepsReplacement(t *testing.T) {
	s := &stubSurface{id: "a"}
	removeOld := s.Handle(RequestConfig, func(Surface, Request) {})
	s.Handle(RequestConfig, func(Surface, Request) {})
	removeOld()
	if !s.Receive(Request{Type: RequestConfig}) {
		t.Error("replacement handler should survive stale remove")
	}
}
