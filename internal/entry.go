// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/shiba/internal/api"
	"github.com/starford/shiba/internal/appconfig"
	"github.com/starford/shiba/internal/configwatch"
	"github.com/starford/shiba/internal/history"
	"github.com/starford/shiba/internal/mcpserver"
	"github.com/starford/shiba/internal/session"
	"github.com/starford/shiba/internal/surface"
	"github.com/starford/shiba/internal/watchdog"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	historyPath := cfg.History.Resolve(cfg.Data.Dir)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("history_path", historyPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Load (or create) the configuration document up front so the first
	// surface does not pay for it.
	store := appconfig.NewStore(cfg.Data.Dir, appconfig.WithLogger(logger))
	_, st := store.LoadOrCreate(cfg.Data.Dir)

	// Initialize the SQLite journal.
	db, err := history.Open(historyPath)
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer db.Close()

	kind := history.KindConfigLoaded
	switch {
	case st.Created:
		kind = history.KindConfigCreated
	case !st.Valid:
		kind = history.KindConfigInvalid
	}
	if err := db.Record(ctx, history.Entry{Kind: kind, Subject: st.Path}); err != nil {
		logger.Warn("journal write failed", slog.String("error", err.Error()))
	}

	source := app.source
	if source == nil {
		source = watchdog.NewFSNotify(logger)
	}

	registry := surface.NewRegistry()
	sessions := session.NewManager(registry, source, store,
		session.WithLogger(logger),
		session.WithJournal(db))
	watcher := configwatch.New(store, registry, source,
		configwatch.WithLogger(logger),
		configwatch.WithJournal(db))

	// Build API router.
	handler := api.NewHandler(store, registry, sessions, db, logger)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if watcher.Watchdog().State() != watchdog.StateReady {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, `{"status":%q}`, watcher.Watchdog().State().String())
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// MCP over streamable HTTP, behind the same auth.
	if cfg.MCP.HTTP {
		mcpSrv := mcpserver.New(store, registry, db)
		r.With(api.AuthMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token)).Handle("/mcp", mcpSrv.HTTPHandler())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Request contexts derive from gCtx so that open WebSocket and SSE
	// surfaces end when the daemon stops.
	httpServer := &http.Server{
		Addr:        cfg.App.HTTP.Address(),
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return gCtx },
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Hot-reload the configuration document.
	g.Go(func() error {
		if err := watcher.Run(gCtx); err != nil {
			// The daemon keeps serving the cached document.
			logger.Error("config watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := sessions.Shutdown(); err != nil {
			logger.Warn("session shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// NewLogger returns the JSON logger every entry point uses.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// ServeMCP serves the MCP tools on stdin/stdout. It shares the data
// directory and journal with a running daemon but sees no surfaces. Logs go
// to stderr since stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	store := appconfig.NewStore(cfg.Data.Dir, appconfig.WithLogger(logger))
	db, err := history.Open(cfg.History.Resolve(cfg.Data.Dir))
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	defer db.Close()

	logger.Info("MCP server starting on stdio", slog.String("data_dir", cfg.Data.Dir))
	errCh := make(chan error, 1)
	go func() { errCh <- mcpserver.New(store, nil, db).ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
