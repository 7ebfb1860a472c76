package watchdog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSNotify is the fsnotify-backed Source. It always watches the target's
// directory so that editors replacing files by rename are still seen.
type FSNotify struct {
	logger *slog.Logger
}

// NewFSNotify creates an fsnotify Source.
func NewFSNotify(logger *slog.Logger) *FSNotify {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSNotify{logger: logger}
}

// Subscribe attaches an fsnotify watcher to the target directory.
func (s *FSNotify) Subscribe(ctx context.Context, target Target, opts Options) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(target.Dir()); err != nil {
		_ = w.Close()
		return nil, err
	}

	sub := &fsSubscription{
		watcher: w,
		target:  target,
		logger:  s.logger,
		out:     make(chan Notification, 64),
		errs:    make(chan error, 4),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	var initial []string
	if !opts.IgnoreInitial {
		initial = existingMatches(target)
	}
	go sub.run(initial)

	s.logger.Debug("watcher: subscribed",
		slog.String("dir", target.Dir()),
		slog.String("target", target.Path),
		slog.String("scope", target.Scope.String()))
	return sub, nil
}

type fsSubscription struct {
	watcher *fsnotify.Watcher
	target  Target
	logger  *slog.Logger

	out  chan Notification
	errs chan error

	once   sync.Once
	done   chan struct{}
	exited chan struct{}
}

func (s *fsSubscription) Notifications() <-chan Notification { return s.out }
func (s *fsSubscription) Errors() <-chan error               { return s.errs }

// Close stops the subscription and waits for its goroutine to exit.
func (s *fsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	<-s.exited
	return err
}

func (s *fsSubscription) run(initial []string) {
	defer close(s.exited)
	defer close(s.errs)
	defer close(s.out)

	for _, p := range initial {
		if !s.emit(Notification{Path: p, Kind: KindAdd}) {
			return
		}
	}

	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.target.Matches(ev.Name) {
				continue
			}
			var kind Kind
			switch {
			case ev.Has(fsnotify.Create):
				kind = KindAdd
			case ev.Has(fsnotify.Write):
				kind = KindChange
			default:
				// Remove, Rename and Chmod are not part of the protocol.
				continue
			}
			if !s.emit(Notification{Path: ev.Name, Kind: kind}) {
				return
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errs <- err:
			case <-s.done:
				return
			}
		}
	}
}

func (s *fsSubscription) emit(n Notification) bool {
	select {
	case s.out <- n:
		return true
	case <-s.done:
		return false
	}
}

// existingMatches lists files present at subscribe time.
func existingMatches(target Target) []string {
	if target.Scope == ScopeFile {
		if info, err := os.Stat(target.Path); err == nil && !info.IsDir() {
			return []string{target.Path}
		}
		return nil
	}
	entries, err := os.ReadDir(target.Path)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(target.Path, e.Name())
		if target.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}
