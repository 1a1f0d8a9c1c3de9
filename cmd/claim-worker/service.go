package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packclaim/internal/accounts"
	"github.com/angelmondragon/packclaim/internal/catalog"
	"github.com/angelmondragon/packclaim/internal/claimpack"
	"github.com/angelmondragon/packclaim/internal/notifications"
	"github.com/angelmondragon/packclaim/internal/ops"
	"github.com/angelmondragon/packclaim/internal/queue"
	"github.com/angelmondragon/packclaim/internal/transactions"
	"github.com/angelmondragon/packclaim/pkg/algorand"
	"github.com/angelmondragon/packclaim/pkg/config"
	"github.com/angelmondragon/packclaim/pkg/db"
	"github.com/angelmondragon/packclaim/pkg/enums"
	"github.com/angelmondragon/packclaim/pkg/idempotency"
	"github.com/angelmondragon/packclaim/pkg/instance"
	"github.com/angelmondragon/packclaim/pkg/logger"
	"github.com/angelmondragon/packclaim/pkg/metrics"
	"github.com/angelmondragon/packclaim/pkg/outbox"
	"github.com/angelmondragon/packclaim/pkg/redis"
)

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Chain      algorand.Adapter
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Service wires the claim-pack pipeline onto the queue worker and runs it
// next to the ops HTTP server.
type Service struct {
	cfg     *config.Config
	logg    *logger.Logger
	db      *db.Client
	redis   *redis.Client
	worker  *queue.Worker
	handler http.Handler
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Chain == nil {
		return nil, errors.New("algorand client is required")
	}
	reg := params.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	cfg := params.Config
	logg := params.Logger
	gormDB := params.DB.DB()
	queueMetrics := metrics.NewQueueMetrics(reg)

	ledger, err := transactions.NewService(transactions.ServiceParams{
		DB:      params.DB,
		Repo:    transactions.NewRepository(gormDB),
		Chain:   params.Chain,
		Logger:  logg,
		Metrics: metrics.NewTransactionMetrics(reg),
	})
	if err != nil {
		return nil, fmt.Errorf("transactions service: %w", err)
	}
	accountService, err := accounts.NewService(accounts.ServiceParams{
		DB:     params.DB,
		Repo:   accounts.NewRepository(gormDB),
		Ledger: ledger,
		Chain:  params.Chain,
		Config: cfg.Accounts,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("accounts service: %w", err)
	}
	catalogService, err := catalog.NewService(catalog.NewRepository(gormDB))
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	notificationService, err := notifications.NewService(notifications.ServiceParams{
		DB:     params.DB,
		Repo:   notifications.NewRepository(gormDB),
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}
	guard, err := idempotency.NewManager(params.Redis, cfg.Eventing.NotificationIdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency guard: %w", err)
	}

	claims, err := claimpack.NewService(claimpack.ServiceParams{
		DB:             params.DB,
		Repo:           claimpack.NewRepository(gormDB),
		Ledger:         ledger,
		Chain:          params.Chain,
		Accounts:       accountService,
		Catalog:        catalogService,
		Notifications:  notificationService,
		Outbox:         outboxService,
		Idempotency:    guard,
		MnemonicSecret: cfg.Security.MnemonicSecret,
		Logger:         logg,
	})
	if err != nil {
		return nil, fmt.Errorf("claimpack service: %w", err)
	}
	processor, err := claimpack.NewProcessor(claims, logg, queueMetrics)
	if err != nil {
		return nil, fmt.Errorf("claimpack processor: %w", err)
	}

	queueRepo := queue.NewRepository(gormDB)
	worker, err := queue.NewWorker(queue.WorkerParams{
		Repo:          queueRepo,
		Handler:       processor,
		Queue:         enums.QueueClaimPack,
		Owner:         instance.GetID(),
		Concurrency:   cfg.Queue.Concurrency,
		PollInterval:  time.Duration(cfg.Queue.PollIntervalMS) * time.Millisecond,
		LeaseDuration: cfg.Queue.LeaseDuration,
		Policy: queue.RetryPolicy{
			Base:                cfg.Queue.BackoffBase,
			ExponentialAttempts: cfg.Queue.ExponentialAttempts,
			DailyInterval:       cfg.Queue.DailyRetryInterval,
			Jitter:              0.2,
		},
		Logger:  logg,
		Metrics: queueMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("queue worker: %w", err)
	}
	jobs, err := queue.NewClient(queueRepo, enums.QueueClaimPack)
	if err != nil {
		return nil, fmt.Errorf("queue client: %w", err)
	}

	handler := ops.NewRouter(ops.RouterParams{
		Env:    cfg.App.Env,
		Logger: logg,
		Checks: []ops.Check{
			{Name: "database", Ping: params.DB.Ping},
			{Name: "redis", Ping: params.Redis.Ping},
		},
		Gatherer: gatherer,
		Jobs:     jobs,
	})

	return &Service{
		cfg:     cfg,
		logg:    logg,
		db:      params.DB,
		redis:   params.Redis,
		worker:  worker,
		handler: handler,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until ctx is canceled or either the worker or the ops server
// fails. In-flight jobs settle before it returns.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.worker.Run(groupCtx)
	})
	group.Go(func() error {
		return ops.Serve(groupCtx, s.logg, ":"+s.cfg.App.OpsPort, s.handler)
	})
	return group.Wait()
}
