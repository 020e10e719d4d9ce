// Entry point for the analysis worker. The service spawns one of these per
// session; wiring arrives through the environment.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/chasse/agent"
	"github.com/hazyhaar/chasse/hunt"
)

func main() {
	// Logs go to stderr: the supervisor forwards them into its own stream.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := agent.Config{
		ToolAddr:  os.Getenv(hunt.EnvToolAddr),
		SessionID: os.Getenv(hunt.EnvSessionID),
		TargetURL: os.Getenv(hunt.EnvTargetURL),
		Logger:    logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := agent.Run(ctx, cfg); err != nil {
		slog.Error("analysis failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analysis complete", "session", cfg.SessionID)
}
