// Package watch owns the lifecycle state machine for payment watches.
//
// States: pending -> completed | expired | failed. Terminal states never
// transition again. Every mutating operation is expressed as a conditional
// write against the stored status ("update to X where status is still
// pending"), so at most one caller wins any transition even when the same
// address is polled concurrently or the same transfer shows up in two poll
// cycles. Losing the race is a silent no-op, not an error.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
)

// Manager drives watch status transitions through the repository's atomic
// conditional updates.
type Manager struct {
	repo   storage.WatchRepository
	events storage.EventRepository
	log    *slog.Logger
}

// NewManager creates a lifecycle manager. events may be nil; the audit log
// is then skipped.
func NewManager(repo storage.WatchRepository, events storage.EventRepository) *Manager {
	return &Manager{
		repo:   repo,
		events: events,
		log:    slog.Default(),
	}
}

// Get retrieves a watch by id.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Watch, error) {
	return m.repo.GetByID(ctx, id)
}

// TryComplete applies the pending -> completed transition, binding the
// transfer hash and matched amount. Returns true iff this call performed
// the transition; false means another worker already moved the watch out
// of pending, which is not an error.
func (m *Manager) TryComplete(ctx context.Context, id, txHash string, received decimal.Decimal, blockTS int64) (bool, error) {
	ok, err := m.repo.CompleteIfPending(ctx, id, domain.CompletionFields{
		TxHash:         txHash,
		ReceivedAmount: received,
		BlockTimestamp: blockTS,
		CompletedAt:    time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("complete watch %s: %w", id, err)
	}
	if !ok {
		m.log.Debug("lost completion race", "watch", id, "tx", txHash)
		return false, nil
	}

	m.log.Info("watch completed", "watch", id, "tx", txHash, "amount", received)
	m.appendEvent(ctx, id, domain.EventWatchCompleted,
		fmt.Sprintf("matched transfer %s for %s USDT", txHash, received))
	return true, nil
}

// TryExpire applies the pending -> expired transition. Returns true iff
// this call performed the transition.
func (m *Manager) TryExpire(ctx context.Context, id string) (bool, error) {
	ok, err := m.repo.SetStatusIfPending(ctx, id, domain.WatchStatusExpired)
	if err != nil {
		return false, fmt.Errorf("expire watch %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}

	m.log.Info("watch expired", "watch", id)
	m.appendEvent(ctx, id, domain.EventWatchExpired, "deadline passed without a matching transfer")
	return true, nil
}

// TryFail applies the pending -> failed transition. There is no automatic
// trigger in the monitoring core; this exists for operator tooling.
func (m *Manager) TryFail(ctx context.Context, id string, reason string) (bool, error) {
	ok, err := m.repo.SetStatusIfPending(ctx, id, domain.WatchStatusFailed)
	if err != nil {
		return false, fmt.Errorf("fail watch %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}

	m.log.Warn("watch failed", "watch", id, "reason", reason)
	m.appendEvent(ctx, id, domain.EventWatchFailed, reason)
	return true, nil
}

func (m *Manager) appendEvent(ctx context.Context, id string, typ domain.WatchEventType, msg string) {
	if m.events == nil {
		return
	}
	if err := m.events.Append(ctx, id, typ, msg); err != nil {
		m.log.Warn("failed to append watch event", "watch", id, "type", typ, "error", err)
	}
}
