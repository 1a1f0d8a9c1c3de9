package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packclaim/internal/cron"
	"github.com/angelmondragon/packclaim/internal/notifications"
	"github.com/angelmondragon/packclaim/internal/queue"
	"github.com/angelmondragon/packclaim/pkg/config"
	"github.com/angelmondragon/packclaim/pkg/db"
	"github.com/angelmondragon/packclaim/pkg/instance"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/metrics"
	"github.com/angelmondragon/packclaim/pkg/migrate"
	"github.com/angelmondragon/packclaim/pkg/outbox"
	"github.com/angelmondragon/packclaim/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single retention cycle and exit")
	only := flag.String("job", "", "run only the named job (implies -once)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(cron.RedisLockParams{
		Client: redisClient,
		Key:    redisClient.LockKey("cron-worker:" + envOrLocal(cfg.App.Env)),
		Holder: instance.GetID(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	switch {
	case *only != "":
		err = service.RunJob(ctx, *only)
	case *once:
		err = service.RunOnce(ctx)
	default:
		logg.Info(ctx, "starting cron worker")
		err = service.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		DB:     dbClient,
		Repo:   notifications.NewRepository(gormDB),
		Outbox: outbox.NewService(outboxRepo, logg),
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	claimJobs, err := cron.NewClaimJobRetentionJob(cron.ClaimJobRetentionJobParams{
		Logger:     logg,
		Repository: queue.NewRepository(gormDB),
		Retention:  cfg.Cron.ClaimJobRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		DLQ:        outbox.NewDLQRepository(gormDB),
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	notificationJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:        logg,
		Notifications: notificationService,
		Retention:     cfg.Cron.NotificationRetentionDays,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{claimJobs, outboxJob, notificationJob} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
