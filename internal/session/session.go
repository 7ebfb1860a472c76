// Package session owns the lifecycle of connected surfaces: it registers
// them, opens a bridge per watched path and tears everything down when the
// surface goes away.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/shiba/internal/apperr"
	"github.com/starford/shiba/internal/bridge"
	"github.com/starford/shiba/internal/history"
	"github.com/starford/shiba/internal/surface"
	"github.com/starford/shiba/internal/watchdog"
)

// Manager opens and closes surface sessions.
type Manager struct {
	registry *surface.Registry
	source   watchdog.Source
	configs  bridge.ConfigSource
	journal  history.Recorder
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	dest         surface.Surface
	bridges      []*bridge.Bridge
	removeConfig func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithJournal records surface open/close events.
func WithJournal(r history.Recorder) Option {
	return func(m *Manager) {
		m.journal = r
	}
}

// NewManager creates a Manager.
func NewManager(registry *surface.Registry, source watchdog.Source, configs bridge.ConfigSource, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		source:   source,
		configs:  configs,
		journal:  history.Discard{},
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Open registers dest and starts one bridge per path. A surface with no
// paths still answers request-config and receives config pushes. A path
// whose watch fails to start is reported to dest as watch-error; the
// surface stays open and the joined start errors are returned.
func (m *Manager) Open(ctx context.Context, dest surface.Surface, paths ...string) error {
	m.mu.Lock()
	if _, ok := m.sessions[dest.ID()]; ok {
		m.mu.Unlock()
		return fmt.Errorf("session: surface %s already open", dest.ID())
	}
	sess := &session{dest: dest}
	m.sessions[dest.ID()] = sess
	m.mu.Unlock()

	m.registry.Add(dest)
	m.record(history.KindSurfaceOpen, dest.ID(), strings.Join(paths, ","))
	m.logger.Info("session: surface opened",
		slog.String("surface", dest.ID()),
		slog.Int("watches", len(paths)))

	var errs []error
	for _, p := range paths {
		if _, err := m.Watch(ctx, dest.ID(), p); err != nil {
			errs = append(errs, err)
		}
	}
	m.serveConfig(sess)
	return errors.Join(errs...)
}

// Watch adds a watched path to an open surface.
func (m *Manager) Watch(ctx context.Context, id, path string) (*bridge.Bridge, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session: surface %s: %w", id, apperr.ErrNotFound)
	}

	target, err := watchdog.ResolveTarget(path)
	if err != nil {
		// The surface's writer may not be running yet, so this must not wait
		// for queue room.
		msg := surface.PathError(uuid.NewString(), path, err.Error())
		if sendErr := sess.dest.Send(msg); sendErr != nil {
			m.logger.Warn("session: watch-error not delivered",
				slog.String("surface", id),
				slog.String("error", sendErr.Error()))
		}
		m.record(history.KindWatchError, path, err.Error())
		return nil, fmt.Errorf("session: resolve %q: %w", path, err)
	}
	dog := watchdog.New(m.source, target, watchdog.WithLogger(m.logger))
	b := bridge.New(dog, sess.dest, m.configs, m.logger)

	m.mu.Lock()
	if m.sessions[id] != sess {
		m.mu.Unlock()
		b.Close()
		return nil, fmt.Errorf("session: surface %s: %w", id, apperr.ErrNotFound)
	}
	sess.bridges = append(sess.bridges, b)
	m.mu.Unlock()

	if err := b.Start(ctx); err != nil {
		m.record(history.KindWatchError, target.Path, err.Error())
		m.serveConfig(sess)
		return b, err
	}
	m.serveConfig(sess)
	return b, nil
}

// serveConfig (re)installs the session-level request-config handler so that
// it outlives any individual bridge.
func (m *Manager) serveConfig(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.removeConfig != nil {
		sess.removeConfig()
	}
	sess.removeConfig = bridge.ServeConfig(sess.dest, m.configs, m.logger)
}

// Close stops every bridge of the surface and unregisters it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session: surface %s: %w", id, apperr.ErrNotFound)
	}
	delete(m.sessions, id)
	bridges := sess.bridges
	removeConfig := sess.removeConfig
	m.mu.Unlock()

	m.registry.Remove(id)
	if removeConfig != nil {
		removeConfig()
	}
	var errs []error
	for _, b := range bridges {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.record(history.KindSurfaceClose, id, "")
	m.logger.Info("session: surface closed", slog.String("surface", id))
	return errors.Join(errs...)
}

// Bridges returns the bridges open for the surface.
func (m *Manager) Bridges(id string) []*bridge.Bridge {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	out := make([]*bridge.Bridge, len(sess.bridges))
	copy(out, sess.bridges)
	return out
}

// Shutdown closes every open session.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := m.Close(id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) record(kind, subject, detail string) {
	err := m.journal.Record(context.Background(), history.Entry{Kind: kind, Subject: subject, Detail: detail})
	if err != nil {
		m.logger.Warn("session: journal write failed", slog.String("error", err.Error()))
	}
}
