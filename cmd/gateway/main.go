package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amareshkumar/telemetry-platform/internal/api"
	"github.com/amareshkumar/telemetry-platform/internal/application/factories/infrastructure"
	"github.com/amareshkumar/telemetry-platform/internal/config"
	"github.com/amareshkumar/telemetry-platform/internal/queue"
	"github.com/amareshkumar/telemetry-platform/internal/usecase"
)

func main() {
	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	// An unreachable queue store at startup aborts rather than degrades.
	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	q := queue.NewRedisQueue(redisClient, cfg.Queue.MaxLength)
	channels := queue.Channels{
		Prefix:     cfg.Queue.ChannelPrefix,
		DeadLetter: cfg.Queue.DeadLetterChannel,
	}

	admitUC := usecase.NewAdmitTelemetry(q, channels)

	handlers := api.NewHandlers(admitUC, redisClient)
	apiHandler := api.NewRouter(handlers, redisClient, cfg.HTTP.RequestTimeout)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: apiHandler,
	}

	go func() {
		logger.Info("Gateway starting", "port", cfg.HTTP.Port, "channel_prefix", cfg.Queue.ChannelPrefix)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Gateway exiting")
}
