package internal

import (
	"github.com/starford/shiba/internal/watchdog"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	source watchdog.Source
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithWatchSource replaces the fsnotify-backed watch source.
func WithWatchSource(src watchdog.Source) Option {
	return func(a *application) {
		a.source = src
	}
}
