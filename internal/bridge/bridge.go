// Package bridge forwards one watchdog's lifecycle events to one surface and
// answers that surface's configuration requests.
package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/shiba/internal/appconfig"
	"github.com/starford/shiba/internal/surface"
	"github.com/starford/shiba/internal/watchdog"
)

// ConfigSource hands out the current configuration document.
type ConfigSource interface {
	Get() *appconfig.Document
}

// Bridge pairs a Watchdog it owns with a Surface it borrows.
type Bridge struct {
	dog     *watchdog.Watchdog
	dest    surface.Surface
	configs ConfigSource
	logger  *slog.Logger

	// ctx bounds blocking deliveries; Close cancels it before stopping the
	// watchdog so a stalled surface cannot hold up Stop.
	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe   func()
	removeHandler func()
	closeOnce     sync.Once
}

// New subscribes to dog and registers the request-config handler on dest.
// The watchdog is not started until Start.
func New(dog *watchdog.Watchdog, dest surface.Surface, configs ConfigSource, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		ctx:     ctx,
		cancel:  cancel,
		dog:     dog,
		dest:    dest,
		configs: configs,
		logger: logger.With(
			slog.String("surface", dest.ID()),
			slog.String("watch_id", dog.ID())),
	}
	b.unsubscribe = dog.Subscribe(b.onEvent)
	b.removeHandler = ServeConfig(dest, configs, logger)
	return b
}

// Start starts the watchdog. A setup failure is forwarded to the surface as
// watch-error, exactly like a runtime error, and also returned.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.dog.Start(ctx); err != nil {
		b.forwardError(err)
		return err
	}
	return nil
}

// Watchdog returns the owned watchdog.
func (b *Bridge) Watchdog() *watchdog.Watchdog {
	return b.dog
}

// Surface returns the destination surface.
func (b *Bridge) Surface() surface.Surface {
	return b.dest
}

// Close detaches from the surface and stops the watchdog. Idempotent.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		b.unsubscribe()
		b.removeHandler()
		err = b.dog.Stop()
	})
	return err
}

func (b *Bridge) onEvent(ev watchdog.Event) {
	switch ev.Type {
	case watchdog.EventReady:
		b.send(surface.WatchReady(ev.WatchID, ev.Target))
	case watchdog.EventUpdate:
		b.send(surface.FileUpdate(ev.WatchID, ev.File, string(ev.Kind)))
	case watchdog.EventError:
		b.forwardError(ev.Err)
	}
}

func (b *Bridge) forwardError(err error) {
	b.logger.Warn("bridge: watch error", slog.String("error", err.Error()))
	b.send(surface.WatchError(b.dog.ID(), err.Error()))
}

// send waits for room on the surface: each bridge owns its watchdog, so a
// slow surface only delays its own notifications.
func (b *Bridge) send(msg surface.Message) {
	b.logger.Debug("bridge: send", slog.String("type", string(msg.Type)))
	if err := b.dest.Deliver(b.ctx, msg); err != nil {
		b.logger.Warn("bridge: send failed",
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()))
	}
}

// ServeConfig answers request-config on dest with the current document,
// replying on the requesting surface. It never forces a reload. The returned
// func removes the handler.
func ServeConfig(dest surface.Surface, configs ConfigSource, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return dest.Handle(surface.RequestConfig, func(from surface.Surface, _ surface.Request) {
		if err := from.Send(surface.ConfigUpdated(configs.Get())); err != nil {
			logger.Warn("bridge: config reply failed",
				slog.String("surface", from.ID()),
				slog.String("error", err.Error()))
		}
	})
}
