// Package main is the family-twigs API entry point.
//
// main wires everything up, in order:
//  1. Config
//  2. Logger
//  3. i18n
//  4. Metrics
//  5. Repositories (sqlite | postgres | memory)
//  6. Services and rate limiters
//  7. Handlers and routes
//  8. CORS
//  9. Session reaper
//  10. HTTP server
//  11. Graceful shutdown
//
// There are no globals; every dependency is created here and passed down.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/mandyibene/family-twigs-backend/config"
	"github.com/mandyibene/family-twigs-backend/pkg/i18n"
	"github.com/mandyibene/family-twigs-backend/pkg/metrics"
)

func main() {
	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		slog.Error("[main] failed to load config", "err", err)
		os.Exit(1)
	}

	// ─── 2. Logger ───
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)
	logger.Info("[main] family-twigs server starting", "env", cfg.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("[main] server exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("[main] server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// ─── 3. i18n ───
	if err := i18n.LoadEmbedded(); err != nil {
		return err
	}

	// ─── 4. Metrics ───
	m := metrics.NewDefault()

	// ─── 5. Repositories ───
	repos, closeRepos, err := initRepositories(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeRepos()

	// ─── 6. Services ───
	svcs, err := initServices(cfg, repos, m, logger)
	if err != nil {
		return err
	}
	limiters, closeLimiters, err := initRateLimiters(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiters()

	// ─── 7. Handlers + Routes ───
	h := initHandlers(svcs, limiters, cfg, logger)
	mux := http.NewServeMux()
	handler := initRoutes(mux, h, svcs.Sessions, limiters, m, logger)

	// ─── 8. CORS ───
	// Credentials are allowed so the browser sends the refresh cookie.
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept-Language"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})

	// ─── 9. Session Reaper ───
	if cfg.Reaper.Enabled {
		svcs.Reaper.Start(ctx)
		defer svcs.Reaper.Stop()
	}

	// ─── 10. HTTP Server ───
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      corsHandler.Handler(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("[main] server listening", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ─── 11. Graceful Shutdown ───
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("[main] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// newLogger builds the JSON process logger. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	}))
}
