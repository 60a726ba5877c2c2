package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/vertix-social/vertix/common/tracing"
	"github.com/vertix-social/vertix/internal/config"
	"github.com/vertix-social/vertix/internal/logging"
)

func main() {
	log := logging.New("federator")

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if os.Getenv("VERTIX_DOMAIN") == "" {
		log.Warn("VERTIX_DOMAIN not set, defaulting to localhost")
	}

	shutdownTracing, err := tracing.InitTracer("federator")
	if err != nil {
		log.Error("failed to initialize tracer", slog.Any("error", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create app", slog.Any("error", err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		if err := app.Shutdown(ctx); err != nil {
			log.Error("error during shutdown", slog.Any("error", err))
		}
		cancel()
	}()

	if err := app.Start(ctx); err != nil {
		log.Error("federator exited", slog.Any("error", err))
		os.Exit(1)
	}
}
