package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/amareshkumar/telemetry-platform/internal/application/factories/infrastructure"
	"github.com/amareshkumar/telemetry-platform/internal/config"
	"github.com/amareshkumar/telemetry-platform/internal/consumer"
	"github.com/amareshkumar/telemetry-platform/internal/infrastructure/postgres"
	"github.com/amareshkumar/telemetry-platform/internal/queue"

	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	// Metrics Server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Processor metrics listening", "port", cfg.Consumer.MetricsPort)
		http.ListenAndServe(":"+cfg.Consumer.MetricsPort, mux)
	}()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	processedRepo := postgres.NewProcessedRepository(pgPool)

	// No length bound on the consumer side: a requeue or dead-letter push
	// must never be refused.
	q := queue.NewRedisQueue(redisClient, 0)
	channels := queue.Channels{
		Prefix:     cfg.Queue.ChannelPrefix,
		DeadLetter: cfg.Queue.DeadLetterChannel,
	}

	detector := consumer.NewDetector(consumer.Thresholds{
		TempHigh:     cfg.Anomaly.TempHigh,
		TempLow:      cfg.Anomaly.TempLow,
		HumidityHigh: cfg.Anomaly.HumidityHigh,
		VoltageLow:   cfg.Anomaly.VoltageLow,
		CurrentHigh:  cfg.Anomaly.CurrentHigh,
	})

	var alerts consumer.AlertPublisher
	if producer := infraFactory.AlertProducer(); producer != nil {
		alerts = producer
		logger.Info("Alert publishing enabled", "topic", producer.GetTopic())
	}

	logger.Info("Processor starting",
		"concurrency", cfg.Consumer.Concurrency,
		"max_retries", cfg.Consumer.MaxRetries,
		"channels", channels.Ordered())

	var wg sync.WaitGroup
	for i := 0; i < cfg.Consumer.Concurrency; i++ {
		loop := consumer.New(consumer.Options{
			Queue:        q,
			Channels:     channels,
			Store:        processedRepo,
			Detector:     detector,
			Alerts:       alerts,
			MaxRetries:   cfg.Consumer.MaxRetries,
			RetryBackoff: cfg.Consumer.RetryBackoff,
			PollTimeout:  cfg.Consumer.PollTimeout,
			WorkerID:     fmt.Sprintf("worker-%d", i+1),
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop.Run(ctx); err != nil {
				logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	wg.Wait()
	logger.Info("Processor exiting")
}
