// Entry point for the chasse analysis service: chi HTTP API, SQLite match
// store, TCP tool link for the worker processes it supervises.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chasse/dbopen"
	"github.com/hazyhaar/chasse/hunt"
	"github.com/hazyhaar/chasse/shield"
)

func main() {
	port := env("PORT", "8086")
	matchPath := env("MATCH_DB", "db/matches.db")
	settingsPath := env("SETTINGS_PATH", "data/settings.json")
	toolAddr := env("TOOL_ADDR", "127.0.0.1:0")
	workerCmd := env("WORKER_CMD", "chasse-agent")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Match DB.
	db, err := dbopen.Open(matchPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("match db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := &hunt.Config{
		SettingsPath:       settingsPath,
		ToolAddr:           toolAddr,
		WorkerCommand:      workerCmd,
		MaxSessionDuration: envDuration("MAX_SESSION_DURATION", 2*time.Minute),
		IdleTimeout:        envDuration("IDLE_TIMEOUT", 30*time.Second),
		GracePeriod:        envDuration("GRACE_PERIOD", 5*time.Second),
	}
	svc, err := hunt.New(db, cfg, logger)
	if err != nil {
		slog.Error("service init", "error", err)
		os.Exit(1)
	}
	if err := svc.Start(ctx); err != nil {
		slog.Error("tool listener", "error", err)
		os.Exit(1)
	}
	defer svc.Close()
	slog.Info("tool link listening", "addr", svc.ToolAddr())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(shield.SecurityHeaders())
	r.Use(shield.MaxBody(1 << 20))
	r.Use(shield.NewRateLimiter(120, time.Minute).Middleware)
	r.Mount("/api", svc.Routes())

	// HTTP server. No WriteTimeout: /api/events streams indefinitely.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("unparseable duration, using default", "key", key, "value", v)
	return def
}
