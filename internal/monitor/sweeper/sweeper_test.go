package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/core/watch"
	"github.com/vietddude/paywatch/internal/infra/storage/memory"
)

func seedWatch(t *testing.T, repo *memory.WatchRepo, id string, expiresAt time.Time) *domain.Watch {
	t.Helper()
	w := &domain.Watch{
		ID:             id,
		Address:        "TLyqzVGLV1srkB7dToTAEqgDSfPtXRJZYH",
		ExpectedAmount: decimal.RequireFromString("10.00"),
		OrderID:        "order-" + id,
		CallbackURL:    "https://merchant.example/webhook",
		Status:         domain.WatchStatusPending,
		CreatedAt:      time.Now().Add(-time.Hour),
		ExpiresAt:      expiresAt,
	}
	require.NoError(t, repo.Create(context.Background(), w))
	return w
}

func TestSweep_ExpiresOverdueWatches(t *testing.T) {
	store := memory.NewMemoryStorage()
	watches := memory.NewWatchRepo(store)
	events := memory.NewEventRepo(store)
	mgr := watch.NewManager(watches, events)

	overdue := seedWatch(t, watches, "w1", time.Now().Add(-time.Minute))
	fresh := seedWatch(t, watches, "w2", time.Now().Add(time.Hour))

	s := NewSweeper(DefaultConfig(), watches, mgr)
	require.NoError(t, s.Sweep(context.Background()))

	got, err := watches.GetByID(context.Background(), overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WatchStatusExpired, got.Status)

	got, err = watches.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WatchStatusPending, got.Status)

	evs, err := events.ListByWatch(context.Background(), overdue.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventWatchExpired, evs[0].Type)
}

func TestSweep_CompletedWatchStaysCompleted(t *testing.T) {
	store := memory.NewMemoryStorage()
	watches := memory.NewWatchRepo(store)
	events := memory.NewEventRepo(store)
	mgr := watch.NewManager(watches, events)

	w := seedWatch(t, watches, "w1", time.Now().Add(-time.Minute))
	ok, err := watches.CompleteIfPending(context.Background(), w.ID, domain.CompletionFields{
		TxHash:         "tx1",
		ReceivedAmount: decimal.RequireFromString("10.00"),
		BlockTimestamp: 1700000001000,
		CompletedAt:    time.Now(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	s := NewSweeper(DefaultConfig(), watches, mgr)
	require.NoError(t, s.Sweep(context.Background()))

	got, err := watches.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WatchStatusCompleted, got.Status)
	assert.Equal(t, "tx1", got.TxHash)
}

func TestSweep_IdempotentAcrossRuns(t *testing.T) {
	store := memory.NewMemoryStorage()
	watches := memory.NewWatchRepo(store)
	events := memory.NewEventRepo(store)
	mgr := watch.NewManager(watches, events)

	w := seedWatch(t, watches, "w1", time.Now().Add(-time.Minute))

	s := NewSweeper(DefaultConfig(), watches, mgr)
	require.NoError(t, s.Sweep(context.Background()))
	require.NoError(t, s.Sweep(context.Background()))

	evs, err := events.ListByWatch(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}
