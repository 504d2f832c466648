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

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/linkindex"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/noteservice"
	"github.com/starford/raido/internal/resolver"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/vault"
	"github.com/starford/raido/internal/watcher"
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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	if app.mcpMode {
		// Stdout carries the MCP protocol in stdio mode; logs go to stderr.
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("cache_path", cfg.Cache.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize vault storage.
	store, err := vault.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	// Open the snapshot cache.
	snapshots, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer snapshots.Close()

	// Link index service.
	idx := linkindex.New(store, logger,
		linkindex.WithDebounce(time.Duration(cfg.Index.DebounceMS)*time.Millisecond),
		linkindex.WithFuzzyDistance(cfg.Index.FuzzyDistance),
	)
	defer idx.Close()

	// Warm start from the last persisted snapshot, if any.
	if snap, loadErr := snapshots.Load(); loadErr == nil {
		idx.SetIndex(snap)
		logger.Info("Index restored from cache",
			slog.Int("files", snap.Metadata.TotalFiles),
			slog.Int("links", snap.Metadata.TotalLinks))
	} else if !errors.Is(loadErr, apperr.ErrNotFound) {
		logger.Warn("cache: restore failed", slog.String("error", loadErr.Error()))
	}

	// Read-side providers over the current snapshot.
	res := resolver.New(idx.Index(), cfg.Index.FuzzyDistance)
	res.SetCandidateLimit(cfg.Index.MaxCandidates)
	queries := graph.NewProvider(idx.Index())

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Every index change refreshes the read providers and the on-disk
	// snapshot, then fans out to SSE clients.
	sub := idx.Subscribe(func(snapshot *models.Index) {
		res.UpdateIndex(snapshot)
		queries.UpdateIndex(snapshot)
		if saveErr := snapshots.Save(snapshot); saveErr != nil {
			logger.Warn("cache: save failed", slog.String("error", saveErr.Error()))
		}
	})
	defer sub.Cancel()

	// Initial full rebuild (reconciles the cached snapshot with disk).
	if _, err := idx.Rebuild(ctx); err != nil {
		logger.Warn("initial rebuild failed", slog.String("error", err.Error()))
	}

	// Note service over the vault, index and graph providers.
	svc := noteservice.NewService(store, idx, res, queries)
	svc.SetEventCallback(broker.PublishChange)

	if app.mcpMode {
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		if err := watcher.Watch(gCtx, idx, store, logger, func(kind, path string) {
			broker.PublishChange(kind, path)
		}); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
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
