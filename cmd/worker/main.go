package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"fiftybrains/delivery/internal/cache"
	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/database"
	"fiftybrains/delivery/internal/log"
	"fiftybrains/delivery/internal/notify"
	"fiftybrains/delivery/internal/queue"
	"fiftybrains/delivery/internal/repository"
	"fiftybrains/delivery/internal/security"
	"fiftybrains/delivery/internal/service"
	"fiftybrains/delivery/internal/storage"
	"fiftybrains/delivery/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Notify.WebhookURL != "" {
		key := security.DeriveKey(cfg.Security.SignatureSecret, security.PurposeWebhook, "")
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, key, cfg.Notify.Timeout)
	}

	purger := service.NewPurger(repository.NewPostgresLedger(dbPool), objectStore, cfg.Jobs.PurgeGrace, logger)
	processor := tasks.NewProcessor(logger, notifier, purger, cfg.Jobs.PurgeBatchSize)
	consumer := queue.NewConsumer(
		client,
		cfg.Queue.Stream,
		cfg.Queue.Group,
		cfg.Queue.Consumer,
		cfg.Queue.ClaimInterval,
		cfg.Queue.MaxDeliveries,
		logger,
		processor,
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
