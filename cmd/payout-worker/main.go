package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mfigueroa/bazario-backend/internal/cron"
	payoutssvc "github.com/mfigueroa/bazario-backend/internal/payouts"
	"github.com/mfigueroa/bazario-backend/internal/vendors"
	"github.com/mfigueroa/bazario-backend/pkg/config"
	"github.com/mfigueroa/bazario-backend/pkg/db"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
	"github.com/mfigueroa/bazario-backend/pkg/metrics"
	"github.com/mfigueroa/bazario-backend/pkg/migrate"
	"github.com/mfigueroa/bazario-backend/pkg/outbox"
	"github.com/mfigueroa/bazario-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "payout-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "payout-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	payoutsService, err := payoutssvc.NewService(
		payoutssvc.NewRepository(dbClient.DB()),
		dbClient,
		vendors.NewRepository(dbClient.DB()),
		payoutssvc.NewLoggingProvider(logg),
		outboxService,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	aggregationJob, err := cron.NewPayoutAggregationJob(payoutsService)
	if err != nil {
		logg.Error(context.Background(), "failed to create aggregation job", err)
		os.Exit(1)
	}
	executionJob, err := cron.NewPayoutExecutionJob(payoutsService)
	if err != nil {
		logg.Error(context.Background(), "failed to create execution job", err)
		os.Exit(1)
	}

	// Aggregation and execution run at independent cadences, each behind its
	// own lock so only one worker instance claims a cycle.
	aggregationService, err := newCronService(logg, redisClient, metricsCollector, "payout-aggregation", cfg.Payouts.LockTTL, cfg.Payouts.AggregationInterval, aggregationJob)
	if err != nil {
		logg.Error(context.Background(), "failed to create aggregation runner", err)
		os.Exit(1)
	}
	executionService, err := newCronService(logg, redisClient, metricsCollector, "payout-execution", cfg.Payouts.LockTTL, cfg.Payouts.ExecutionInterval, executionJob)
	if err != nil {
		logg.Error(context.Background(), "failed to create execution runner", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting payout worker")

	var wg sync.WaitGroup
	for _, svc := range []*cron.Service{aggregationService, executionService} {
		wg.Add(1)
		go func(svc *cron.Service) {
			defer wg.Done()
			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "payout runner stopped unexpectedly", err)
			}
		}(svc)
	}
	wg.Wait()

	logg.Info(ctx, "payout worker shutting down gracefully")
}

func newCronService(
	logg *logger.Logger,
	redisClient *redis.Client,
	metricsCollector *metrics.CronJobMetrics,
	name string,
	lockTTL, interval time.Duration,
	jobs ...cron.Job,
) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(name), lockTTL)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: interval,
	})
}
