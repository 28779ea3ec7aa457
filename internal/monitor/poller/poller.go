package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/core/match"
	"github.com/vietddude/paywatch/internal/core/watch"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/monitor/metrics"
	"github.com/vietddude/paywatch/internal/monitor/notify"
)

// Ledger fetches confirmed inbound token transfers for an address.
type Ledger interface {
	TransfersSince(ctx context.Context, address string, sinceMS int64) ([]domain.Transfer, error)
}

// Locker coordinates per-address polling across process instances. The
// lock is a throughput optimization only: the conditional status update
// in storage stays correct without it.
type Locker interface {
	AcquirePollLock(ctx context.Context, address string, ttl time.Duration) (bool, error)
	ReleasePollLock(ctx context.Context, address string) error
}

// Config holds poller configuration.
type Config struct {
	Interval       time.Duration
	MaxConcurrency int
	LockTTL        time.Duration
}

// DefaultConfig returns default poller configuration.
func DefaultConfig() Config {
	return Config{
		Interval:       10 * time.Second,
		MaxConcurrency: 8,
		LockTTL:        30 * time.Second,
	}
}

// Poller periodically scans the ledger for transfers settling pending
// watches.
type Poller struct {
	cfg      Config
	policy   match.Policy
	ledger   Ledger
	locker   Locker // nil when running without Redis
	watches  storage.WatchRepository
	cursors  storage.CursorRepository
	manager  *watch.Manager
	notifier *notify.Notifier
	log      *slog.Logger

	mu       sync.Mutex
	lastPoll time.Time
}

// NewPoller creates a poller. locker may be nil.
func NewPoller(
	cfg Config,
	policy match.Policy,
	ledger Ledger,
	locker Locker,
	watches storage.WatchRepository,
	cursors storage.CursorRepository,
	manager *watch.Manager,
	notifier *notify.Notifier,
) *Poller {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Poller{
		cfg:      cfg,
		policy:   policy,
		ledger:   ledger,
		locker:   locker,
		watches:  watches,
		cursors:  cursors,
		manager:  manager,
		notifier: notifier,
		log:      slog.Default().With("component", "poller"),
	}
}

// Run starts the poll loop. One cycle is executed immediately, then one
// per interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("Starting poller", "interval", p.cfg.Interval)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			p.log.Error("Poll cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.log.Info("Poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// LastPoll reports when the previous poll cycle finished. Safe to call
// from other goroutines, e.g. the health monitor.
func (p *Poller) LastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoll
}

// Poll executes one poll cycle over all pending watches. Addresses are
// polled concurrently; a failure on one address never blocks the rest.
func (p *Poller) Poll(ctx context.Context) error {
	pending, err := p.watches.ListPending(ctx)
	if err != nil {
		return err
	}
	metrics.PendingWatches.Set(float64(len(pending)))

	byAddress := make(map[string][]*domain.Watch)
	for _, w := range pending {
		byAddress[w.Address] = append(byAddress[w.Address], w)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for address, watches := range byAddress {
		address, watches := address, watches
		g.Go(func() error {
			if err := p.pollAddress(gctx, address, watches); err != nil {
				p.log.Error("Failed to poll address", "address", address, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.mu.Unlock()
	metrics.PollCycles.Inc()
	return nil
}

// pollAddress fetches new transfers for one address and binds them to
// its pending watches.
func (p *Poller) pollAddress(ctx context.Context, address string, pending []*domain.Watch) error {
	if p.locker != nil {
		locked, err := p.locker.AcquirePollLock(ctx, address, p.cfg.LockTTL)
		if err != nil {
			p.log.Warn("Poll lock unavailable, proceeding without it", "address", address, "error", err)
		} else if !locked {
			// Another instance is polling this address.
			return nil
		} else {
			defer func() {
				if err := p.locker.ReleasePollLock(context.WithoutCancel(ctx), address); err != nil {
					p.log.Warn("Failed to release poll lock", "address", address, "error", err)
				}
			}()
		}
	}

	cursor, err := p.cursors.Get(ctx, address)
	if err != nil {
		return err
	}

	transfers, err := p.ledger.TransfersSince(ctx, address, cursor.LastTimestamp)
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		return nil
	}

	hashes := make([]string, 0, len(transfers))
	maxTS := cursor.LastTimestamp
	for _, tr := range transfers {
		hashes = append(hashes, tr.TxHash)
		if tr.BlockTimestamp > maxTS {
			maxTS = tr.BlockTimestamp
		}
	}
	claimed, err := p.watches.ClaimedTxHashes(ctx, hashes)
	if err != nil {
		return err
	}

	results := match.Match(transfers, pending, claimed, p.policy)
	for _, res := range results {
		metrics.MatchesFound.Inc()
		if err := p.settle(ctx, res); err != nil {
			// Leave the cursor behind so the transfer is retried next cycle.
			return err
		}
	}

	return p.cursors.Advance(ctx, address, maxTS)
}

// settle applies one match result. Losing the completion race is a
// silent no-op: another poller already bound this watch.
func (p *Poller) settle(ctx context.Context, res match.Result) error {
	won, err := p.manager.TryComplete(ctx, res.WatchID, res.TxHash, res.Amount, res.BlockTimestamp)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	metrics.WatchesCompleted.Inc()
	p.log.Info("Watch completed",
		"watch_id", res.WatchID,
		"tx_hash", res.TxHash,
		"amount", res.Amount.String())

	completed, err := p.watches.GetByID(ctx, res.WatchID)
	if err != nil {
		return err
	}
	if p.notifier != nil {
		p.notifier.Enqueue(completed)
	}
	return nil
}

// Epsilon parses the configured amount tolerance, falling back to the
// default on malformed input.
func Epsilon(raw string) decimal.Decimal {
	eps, err := decimal.NewFromString(raw)
	if err != nil || eps.IsNegative() {
		return match.DefaultEpsilon
	}
	return eps
}
