// Package control wires the payment-watch engine together and manages
// its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/paywatch/internal/core/config"
	"github.com/vietddude/paywatch/internal/core/match"
	"github.com/vietddude/paywatch/internal/core/watch"
	redisclient "github.com/vietddude/paywatch/internal/infra/redis"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/infra/storage/memory"
	"github.com/vietddude/paywatch/internal/infra/storage/postgres"
	"github.com/vietddude/paywatch/internal/infra/trongrid"
	"github.com/vietddude/paywatch/internal/monitor/health"
	"github.com/vietddude/paywatch/internal/monitor/notify"
	"github.com/vietddude/paywatch/internal/monitor/poller"
	"github.com/vietddude/paywatch/internal/monitor/sweeper"
	"github.com/vietddude/paywatch/internal/service"
)

// Engine is the main application struct that manages the monitor lifecycle.
type Engine struct {
	cfg          config.AppConfig
	watches      storage.WatchRepository
	events       storage.EventRepository
	svc          *service.Service
	poller       *poller.Poller
	sweeper      *sweeper.Sweeper
	notifier     *notify.Notifier
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewEngine creates an engine with all dependencies initialized. Storage
// backs onto PostgreSQL when a database URL is configured, and falls
// back to in-process memory otherwise.
func NewEngine(cfg config.AppConfig) (*Engine, error) {
	var (
		watchRepo  storage.WatchRepository
		cursorRepo storage.CursorRepository
		eventRepo  storage.EventRepository
		db         *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		dir := cfg.Database.MigrationsDir
		if dir == "" {
			dir = "migrations"
		}
		if err := db.Migrate(dir); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		watchRepo = postgres.NewWatchRepo(db)
		cursorRepo = postgres.NewCursorRepo(db)
		eventRepo = postgres.NewEventRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		watchRepo = memory.NewWatchRepo(store)
		cursorRepo = memory.NewCursorRepo(store)
		eventRepo = memory.NewEventRepo(store)
		slog.Info("Using Memory storage")
	}

	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, poll locks disabled", "error", err)
		}
	}

	manager := watch.NewManager(watchRepo, eventRepo)
	svc := service.NewService(watchRepo, eventRepo, cfg.Monitor.WatchTTL)

	ledger := trongrid.NewClient(trongrid.Config{
		BaseURL:   cfg.Ledger.BaseURL,
		APIKey:    cfg.Ledger.APIKey,
		Contract:  cfg.Ledger.Contract,
		Timeout:   cfg.Ledger.Timeout,
		PageLimit: cfg.Ledger.PageLimit,
	})

	notifier := notify.NewNotifier(
		notify.Config{
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			AttemptTimeout: cfg.Webhook.AttemptTimeout,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		},
		notify.NewWebhookClient(),
		watchRepo,
		eventRepo,
		cfg.Monitor.NotifyQueueSize,
	)

	policy := match.Policy{
		Contract: cfg.Ledger.Contract,
		Epsilon:  poller.Epsilon(cfg.Monitor.AmountEpsilon),
	}

	pollCfg := poller.DefaultConfig()
	pollCfg.Interval = cfg.Monitor.PollInterval
	pollCfg.MaxConcurrency = cfg.Monitor.MaxConcurrency

	var locker poller.Locker
	if redisClient != nil {
		locker = redisClient
	}
	p := poller.NewPoller(pollCfg, policy, ledger, locker, watchRepo, cursorRepo, manager, notifier)

	s := sweeper.NewSweeper(sweeper.Config{Interval: cfg.Monitor.SweepInterval}, watchRepo, manager)

	var pinger health.Pinger
	if db != nil {
		pinger = db
	}
	healthMon := health.NewMonitor(watchRepo, p, notifier, pinger, cfg.Monitor.PollInterval)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &Engine{
		cfg:          cfg,
		watches:      watchRepo,
		events:       eventRepo,
		svc:          svc,
		poller:       p,
		sweeper:      s,
		notifier:     notifier,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Service returns the watch registration API.
func (e *Engine) Service() *service.Service {
	return e.svc
}

// Watches returns the watch repository for operator tooling.
func (e *Engine) Watches() storage.WatchRepository {
	return e.watches
}

// Events returns the audit log repository for operator tooling.
func (e *Engine) Events() storage.EventRepository {
	return e.events
}

// Start launches the health server, notifier, poller and sweeper.
func (e *Engine) Start(ctx context.Context) error {
	go func() {
		if err := e.healthServer.Start(); err != nil {
			e.log.Error("Health server failed", "error", err)
		}
	}()

	e.notifier.Start(ctx)

	go func() {
		if err := e.poller.Run(ctx); err != nil {
			e.log.Error("Poller failed", "error", err)
		}
	}()

	go func() {
		if err := e.sweeper.Run(ctx); err != nil {
			e.log.Error("Sweeper failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts the engine down.
func (e *Engine) Stop(ctx context.Context) error {
	e.log.Info("Stopping engine...")

	e.notifier.Stop()

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn("Failed to close database", "error", err)
		}
	}

	return e.healthServer.Stop(ctx)
}
