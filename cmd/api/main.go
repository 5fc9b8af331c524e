package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"fiftybrains/delivery/internal/cache"
	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/database"
	"fiftybrains/delivery/internal/handlers"
	"fiftybrains/delivery/internal/jobs"
	"fiftybrains/delivery/internal/log"
	"fiftybrains/delivery/internal/queue"
	"fiftybrains/delivery/internal/repository"
	"fiftybrains/delivery/internal/server"
	"fiftybrains/delivery/internal/service"
	"fiftybrains/delivery/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.Migrate {
		if err := database.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("schema migration failed")
		}
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	ledger := repository.NewPostgresLedger(dbPool)
	publisher := queue.NewPublisher(redisClient, cfg.Queue.Stream)
	gate := service.NewGateService(ledger, cfg.Workflow)
	services := handlers.Services{
		Gate: gate,
		Deliveries: service.NewDeliveryService(
			ledger,
			objectStore,
			gate,
			cache.NewSubmitLocks(redisClient, cfg.Workflow.SubmitLockTTL),
			publisher,
			cfg.Workflow,
			logger,
		),
		Reviews: service.NewReviewService(ledger, publisher, logger),
	}

	checks := map[string]handlers.HealthCheck{
		"database": dbPool.Ping,
		"cache":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"storage":  objectStore.Ping,
	}
	handlerSet := handlers.NewHandlerSet(logger, cfg, services, cache.NewNonces(redisClient), checks)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(publisher, cfg.Jobs.PurgeCron, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
