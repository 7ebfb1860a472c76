// Package configwatch hot-reloads the configuration document when its file
// changes and pushes the new document to every open surface.
package configwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/starford/shiba/internal/appconfig"
	"github.com/starford/shiba/internal/checksum"
	"github.com/starford/shiba/internal/history"
	"github.com/starford/shiba/internal/surface"
	"github.com/starford/shiba/internal/watchdog"
)

// Watcher watches the config directory and re-broadcasts reloads.
type Watcher struct {
	store    *appconfig.Store
	registry *surface.Registry
	journal  history.Recorder
	logger   *slog.Logger
	dog      *watchdog.Watchdog
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithJournal records reloads and watch errors.
func WithJournal(r history.Recorder) Option {
	return func(w *Watcher) {
		w.journal = r
	}
}

// New creates a Watcher for the store's directory. Files already present
// when the watch starts do not trigger a reload.
func New(store *appconfig.Store, registry *surface.Registry, source watchdog.Source, opts ...Option) *Watcher {
	w := &Watcher{
		store:    store,
		registry: registry,
		journal:  history.Discard{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	dir := store.Dir()
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	target := watchdog.Target{
		Path:     dir,
		Scope:    watchdog.ScopeDir,
		Patterns: appconfig.FileNames,
	}
	w.dog = watchdog.New(source, target,
		watchdog.WithLogger(w.logger),
		watchdog.WithIgnoreInitial(true))
	w.dog.Subscribe(w.onEvent)
	return w
}

// Start begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.dog.Start(ctx); err != nil {
		w.record(history.KindWatchError, w.store.Dir(), err.Error())
		return fmt.Errorf("configwatch: %w", err)
	}
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	return w.dog.Stop()
}

// Run starts the watcher and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// Watchdog exposes the underlying watchdog.
func (w *Watcher) Watchdog() *watchdog.Watchdog {
	return w.dog
}

func (w *Watcher) onEvent(ev watchdog.Event) {
	switch ev.Type {
	case watchdog.EventReady:
		w.logger.Info("configwatch: watching", slog.String("dir", ev.Target))
	case watchdog.EventUpdate:
		w.reload(ev.File, ev.Kind)
	case watchdog.EventError:
		w.logger.Error("configwatch: watch error", slog.String("error", ev.Err.Error()))
		w.record(history.KindWatchError, w.store.Dir(), ev.Err.Error())
	}
}

// reload runs on the watchdog's delivery goroutine, so pushes reach each
// surface in the order the file changes were observed. It never writes the
// file: a save caught half way leaves the previous document in place and
// the next event picks up the finished content.
func (w *Watcher) reload(file string, kind watchdog.Kind) {
	doc, st, err := w.store.Reload(w.store.Dir())
	if err != nil {
		w.logger.Warn("configwatch: config unreadable, keeping previous document",
			slog.String("file", file),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
		w.record(history.KindConfigInvalid, file, fmt.Sprintf("%s %s", kind, err))
		return
	}

	entryKind := history.KindConfigLoaded
	if !st.Valid {
		entryKind = history.KindConfigInvalid
	}
	w.record(entryKind, st.Path, fmt.Sprintf("%s %s sha256:%s", kind, file, checksum.Short(st.Checksum)))

	w.logger.Debug("configwatch: configuration reloaded",
		slog.String("file", file),
		slog.String("kind", string(kind)),
		slog.Bool("valid", st.Valid))

	if w.registry.Len() == 0 {
		w.logger.Warn("configwatch: no surface open, skipping config push")
		return
	}
	sent, err := w.registry.Broadcast(surface.ConfigUpdated(doc))
	if err != nil {
		w.logger.Warn("configwatch: config push failed", slog.String("error", err.Error()))
	}
	w.logger.Debug("configwatch: config pushed", slog.Int("surfaces", sent))
}

func (w *Watcher) record(kind, subject, detail string) {
	err := w.journal.Record(context.Background(), history.Entry{Kind: kind, Subject: subject, Detail: detail})
	if err != nil {
		w.logger.Warn("configwatch: journal write failed", slog.String("error", err.Error()))
	}
}
