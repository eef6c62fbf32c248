// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/reverie/internal/api"
	"github.com/starford/reverie/internal/configwatch"
	"github.com/starford/reverie/internal/journal"
	"github.com/starford/reverie/internal/mcpserver"
	"github.com/starford/reverie/internal/sse"
	pkgconfig "github.com/starford/reverie/pkg/config"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	cfg, logger, level, err := app.setup()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("images_path", cfg.Images.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	d, err := buildDeps(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer d.Close()

	svc := api.Services{
		Journal: d.journal,
		Search:  d.planner,
	}
	if d.chat != nil {
		svc.Chat = d.chat
	}
	if d.assistant != nil {
		svc.Prompter = d.assistant
	}
	apiRouter := api.NewRouter(svc, api.RouterConfig{
		AuthEnabled:    cfg.Auth.AuthEnabled(),
		Token:          cfg.Auth.Token,
		RequestTimeout: cfg.App.RequestTimeout,
		Events:         broker,
	})

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := d.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	// Generated images.
	r.With(api.AuthMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token)).
		Get("/images/{filename}", api.NewImageHandler(d.images).ServeFile)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Hot reload of log level and search tuning.
	if cfg.App.WatchConfig && app.configPath != "" {
		g.Go(func() error {
			return configwatch.Watch(gCtx, app.configPath, configwatch.DefaultDebounce, logger, func() error {
				next := NewDefaultConfig()
				if err := pkgconfig.Load(app.configPath, next); err != nil {
					return err
				}
				level.Set(next.App.LogLevel)
				d.planner.SetOptions(next.Search.Options())
				logger.Info("config applied",
					slog.String("log_level", next.App.LogLevel.String()),
					slog.Float64("keyword_score", next.Search.KeywordScore))
				return nil
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
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
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("context cancelled, initiating shutdown")
		}

		logger.Info("shutting down server...")

		// Event streams only end when the broker closes their channels.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped successfully")
	return nil
}

// errShutdown cancels the group so that the watcher exits with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless
// redirected, since stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	_, logger, _, err := app.setup()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	d, err := buildDeps(app.config, logger, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	srv := mcpserver.New(d.journal, d.planner, d.db)
	logger.Info("mcp: serving on stdio")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Reindex re-chunks entries that have no chunks and embeds chunks stored
// without a vector, then exits.
func Reindex(ctx context.Context, batch int, opts ...Option) (journal.BackfillReport, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	_, logger, _, err := app.setup()
	if err != nil {
		return journal.BackfillReport{}, err
	}

	d, err := buildDeps(app.config, logger, nil)
	if err != nil {
		return journal.BackfillReport{}, err
	}
	defer d.Close()

	report, err := d.journal.Backfill(ctx, batch)
	if err != nil {
		return report, err
	}
	logger.Info("reindex: done",
		slog.Int("rechunked", report.Rechunked),
		slog.Int("embedded", report.Embedded),
		slog.Int("failed", report.Failed))
	return report, nil
}
