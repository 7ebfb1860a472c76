package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/shiba/internal/appconfig"
	"github.com/starford/shiba/internal/apperr"
	"github.com/starford/shiba/internal/history"
	"github.com/starford/shiba/internal/surface"
	"github.com/starford/shiba/internal/testutil"
	"github.com/starford/shiba/internal/watchdog"
)

type env struct {
	mgr *Manager
	src *testutil.Source
	reg *surface.Registry
	db  *history.DB
}

func newEnv(t *testing.T) env {
	t.Helper()
	store := appconfig.NewStore(t.TempDir(), appconfig.WithLogger(testutil.Logger()))
	reg := surface.NewRegistry()
	src := &testutil.Source{}
	db := testutil.TestDB(t)
	mgr := NewManager(reg, src, store, WithLogger(testutil.Logger()), WithJournal(db))
	t.Cleanup(func() { mgr.Shutdown() })
	return env{mgr: mgr, src: src, reg: reg, db: db}
}

func TestOpen_RegistersAndWatches(t *testing.T) {
	e := newEnv(t)
	dest := testutil.NewSurface("win-1")

	if err := e.mgr.Open(context.Background(), dest, "/docs/a.md"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := e.reg.Get("win-1"); !ok {
		t.Error("surface not registered")
	}
	if got := len(e.mgr.Bridges("win-1")); got != 1 {
		t.Fatalf("bridges = %d, want 1", got)
	}

	e.src.Last().Push("/docs/a.md", watchdog.KindChange)
	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return len(dest.OfType(surface.MessageFileUpdate)) == 1
	}, "expected file-update")

	if n, _ := e.db.Count(context.Background(), history.KindSurfaceOpen); n != 1 {
		t.Errorf("surface.open entries = %d, want 1", n)
	}
}

func TestOpen_WithoutPathStillServesConfig(t *testing.T) {
	e := newEnv(t)
	dest := testutil.NewSurface("win-1")

	if err := e.mgr.Open(context.Background(), dest); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !dest.Receive(surface.Request{Type: surface.RequestConfig}) {
		t.Fatal("request-config not handled")
	}
	if got := len(dest.OfType(surface.MessageConfigUpdated)); got != 1 {
		t.Errorf("config replies = %d, want 1", got)
	}
}

func TestOpen_DuplicateRejected(t *testing.T) {
	e := newEnv(t)
	dest := testutil.NewSurface("win-1")
	if err := e.mgr.Open(context.Background(), dest); err != nil {
		t.Fatal(err)
	}
	if err := e.mgr.Open(context.Background(), dest); err == nil {
		t.Error("expected error for second open")
	}
}

func TestOpen_StartFailureKeepsSurfaceOpen(t *testing.T) {
	e := newEnv(t)
	e.src.FailWith(errors.New("boom"))
	dest := testutil.NewSurface("win-1")

	err := e.mgr.Open(context.Background(), dest, "/docs/a.md")
	if !errors.Is(err, apperr.ErrWatchSetup) {
		t.Fatalf("err = %v, want ErrWatchSetup", err)
	}
	if got := len(dest.OfType(surface.MessageWatchError)); got != 1 {
		t.Errorf("watch-error messages = %d, want 1", got)
	}
	if _, ok := e.reg.Get("win-1"); !ok {
		t.Error("surface should stay registered")
	}
	if n, _ := e.db.Count(context.Background(), history.KindWatchError); n != 1 {
		t.Errorf("watch.error entries = %d, want 1", n)
	}
}

func TestWatch_UnresolvablePathCarriesWatchID(t *testing.T) {
	e := newEnv(t)
	dest := testutil.NewSurface("win-1")
	if err := e.mgr.Open(context.Background(), dest); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := e.mgr.Watch(context.Background(), "win-1", ""); err == nil {
			t.Fatal("expected error for empty path")
		}
	}

	errs := dest.OfType(surface.MessageWatchError)
	if len(errs) != 2 {
		t.Fatalf("watch-error messages = %d, want 2", len(errs))
	}
	if errs[0].WatchID == "" || errs[1].WatchID == "" {
		t.Errorf("watch-error without watch id: %+v", errs)
	}
	if errs[0].WatchID == errs[1].WatchID {
		t.Error("each failed watch needs its own id")
	}
	if errs[0].Error == "" {
		t.Error("missing error text")
	}
	if n, _ := e.db.Count(context.Background(), history.KindWatchError); n != 2 {
		t.Errorf("watch.error entries = %d, want 2", n)
	}
	if got := len(e.mgr.Bridges("win-1")); got != 0 {
		t.Errorf("bridges = %d, want 0", got)
	}
}

func TestClose_TearsDown(t *testing.T) {
	e := newEnv(t)
	dest := testutil.NewSurface("win-1")
	if err := e.mgr.Open(context.Background(), dest, "/docs/a.md", "/docs/b.md"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	bridges := e.mgr.Bridges("win-1")

	if err := e.mgr.Close("win-1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if e.reg.Len() != 0 {
		t.Error("surface still registered")
	}
	for _, sub := range e.src.Subscriptions() {
		if !sub.Closed() {
			t.Error("subscription left open")
		}
	}
	for _, b := range bridges {
		if st := b.Watchdog().State(); st != watchdog.StateStopped {
			t.Errorf("watchdog state = %s, want stopped", st)
		}
	}
	if dest.Receive(surface.Request{Type: surface.RequestConfig}) {
		t.Error("request-config still handled after close")
	}
	if n, _ := e.db.Count(context.Background(), history.KindSurfaceClose); n != 1 {
		t.Errorf("surface.close entries = %d, want 1", n)
	}
	if err := e.mgr.Close("win-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Close = %v, want ErrNotFound", err)
	}
}

func TestWatch_UnknownSurface(t *testing.T) {
	e := newEnv(t)
	if _, err := e.mgr.Watch(context.Background(), "nope", "/docs/a.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestWatch_ConfigHandlerOutlivesBridge(t *testing.T) {
	e := newEnv(t)
	dest := testutil.NewSurface("win-1")
	if err := e.mgr.Open(context.Background(), dest); err != nil {
		t.Fatal(err)
	}
	b, err := e.mgr.Watch(context.Background(), "win-1", "/docs/a.md")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	b.Close()

	if !dest.Receive(surface.Request{Type: surface.RequestConfig}) {
		t.Error("request-config lost after bridge close")
	}
}
