package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stitchwell-backend/internal/maintenance"
	"github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	"github.com/angelmondragon/stitchwell-backend/pkg/db"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/metrics"
	"github.com/angelmondragon/stitchwell-backend/pkg/migrate"
	"github.com/angelmondragon/stitchwell-backend/pkg/outbox"
	"github.com/angelmondragon/stitchwell-backend/pkg/redis"
)

const lockKeyFormat = "sw:maintenance:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "maintenance-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "maintenance-worker"

	logg = logger.New(logger.Options{
		ServiceName: "maintenance-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "maintenance worker shutting down gracefully")
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	// The lease outlives one cycle so a crashed worker frees it by the next tick.
	lock, err := maintenance.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Maintenance.Interval)
	if err != nil {
		return err
	}

	retention, err := maintenance.NewOutboxRetentionJob(maintenance.OutboxRetentionParams{
		Logger:    logg,
		DB:        dbClient,
		Outbox:    outbox.NewRepository(dbClient.DB()),
		Retention: cfg.Maintenance.OutboxRetention,
	})
	if err != nil {
		return err
	}
	orphans, err := maintenance.NewOrphanedPaymentsJob(maintenance.OrphanedPaymentsParams{
		Logger:    logg,
		Payments:  orders.NewRepository(dbClient.DB()),
		Grace:     cfg.Maintenance.OrphanGrace,
		BatchSize: cfg.Maintenance.OrphanBatchSize,
	})
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	scheduler, err := maintenance.NewScheduler(maintenance.SchedulerParams{
		Logger:   logg,
		Registry: maintenance.NewRegistry(retention, orphans),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(promRegistry),
		Interval: cfg.Maintenance.Interval,
	})
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, metricsServer.Shutdown(shutdownCtx))
	}()

	logg.Info(ctx, "starting maintenance worker")
	return scheduler.Run(ctx)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
