// Package watchdog translates raw filesystem change notifications for one
// target into a three-event lifecycle: ready, update and error.
package watchdog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Kind classifies a change notification.
type Kind string

// Notification kinds.
const (
	KindAdd    Kind = "add"
	KindChange Kind = "change"
)

// Notification is one raw change reported by a Source.
type Notification struct {
	Path string
	Kind Kind
}

// Scope tells whether a Target names a single file or a directory.
type Scope int

// Target scopes.
const (
	ScopeFile Scope = iota
	ScopeDir
)

func (s Scope) String() string {
	if s == ScopeDir {
		return "dir"
	}
	return "file"
}

// Target is the resolved path a Watchdog observes.
type Target struct {
	Path  string
	Scope Scope
	// Patterns filters directory-scoped notifications by base name
	// (filepath.Match syntax). Empty matches every file.
	Patterns []string
}

// ResolveTarget makes path absolute and decides its scope. A path that does
// not exist yet is treated as a single file.
func ResolveTarget(path string, patterns ...string) (Target, error) {
	if path == "" {
		return Target{}, fmt.Errorf("watchdog: empty target path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Target{}, fmt.Errorf("watchdog: resolve %s: %w", path, err)
	}
	t := Target{Path: abs, Scope: ScopeFile, Patterns: patterns}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		t.Scope = ScopeDir
	}
	return t, nil
}

// Dir returns the directory that has to be observed for this target.
func (t Target) Dir() string {
	if t.Scope == ScopeDir {
		return t.Path
	}
	return filepath.Dir(t.Path)
}

// Matches reports whether an absolute path falls inside the target.
func (t Target) Matches(path string) bool {
	if t.Scope == ScopeFile {
		return filepath.Clean(path) == t.Path
	}
	if filepath.Dir(path) != t.Path {
		return false
	}
	if len(t.Patterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, p := range t.Patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Options tunes a subscription.
type Options struct {
	// IgnoreInitial suppresses add notifications for files that already
	// exist when the subscription starts.
	IgnoreInitial bool
}

// Source produces change notifications for a target. Each subscription is
// infinite and not restartable; closing it releases all resources.
type Source interface {
	Subscribe(ctx context.Context, target Target, opts Options) (Subscription, error)
}

// Subscription is a live Source registration.
type Subscription interface {
	Notifications() <-chan Notification
	Errors() <-chan error
	Close() error
}
