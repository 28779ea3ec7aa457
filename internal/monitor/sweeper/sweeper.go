package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/paywatch/internal/core/watch"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/monitor/metrics"
)

// Config holds sweeper configuration.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns default sweeper configuration.
func DefaultConfig() Config {
	return Config{Interval: time.Minute}
}

// Sweeper expires pending watches whose deadline has passed. The
// conditional status update in storage arbitrates against concurrent
// completions: a watch that just settled stays completed.
type Sweeper struct {
	cfg     Config
	watches storage.WatchRepository
	manager *watch.Manager
	log     *slog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg Config, watches storage.WatchRepository, manager *watch.Manager) *Sweeper {
	return &Sweeper{
		cfg:     cfg,
		watches: watches,
		manager: manager,
		log:     slog.Default().With("component", "sweeper"),
	}
}

// Run starts the sweep loop until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("Starting sweeper", "interval", s.cfg.Interval)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil {
			s.log.Error("Sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep expires all overdue pending watches once.
func (s *Sweeper) Sweep(ctx context.Context) error {
	overdue, err := s.watches.ListExpired(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, w := range overdue {
		expired, err := s.manager.TryExpire(ctx, w.ID)
		if err != nil {
			s.log.Error("Failed to expire watch", "watch_id", w.ID, "error", err)
			continue
		}
		if expired {
			metrics.WatchesExpired.Inc()
			s.log.Info("Watch expired", "watch_id", w.ID, "order_id", w.OrderID)
		}
	}
	return nil
}
