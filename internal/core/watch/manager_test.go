package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage/memory"
)

func newTestManager(t *testing.T) (*Manager, *memory.WatchRepo) {
	t.Helper()
	store := memory.NewMemoryStorage()
	repo := memory.NewWatchRepo(store)
	return NewManager(repo, memory.NewEventRepo(store)), repo
}

func createPending(t *testing.T, repo *memory.WatchRepo, id string) *domain.Watch {
	t.Helper()
	w := &domain.Watch{
		ID:             id,
		Address:        "TXYZa1b2c3d4e5f6g7h8i9j0k1l2m3n4o5",
		ExpectedAmount: decimal.RequireFromString("10.5"),
		OrderID:        "order-" + id,
		CallbackURL:    "https://shop.example.com/webhook",
		Status:         domain.WatchStatusPending,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	if err := repo.Create(context.Background(), w); err != nil {
		t.Fatalf("create watch: %v", err)
	}
	return w
}

func TestTryComplete(t *testing.T) {
	mgr, repo := newTestManager(t)
	ctx := context.Background()
	createPending(t, repo, "w1")

	ok, err := mgr.TryComplete(ctx, "w1", "txabc", decimal.RequireFromString("10.5"), 1712345678901)
	if err != nil {
		t.Fatalf("TryComplete: %v", err)
	}
	if !ok {
		t.Fatal("expected first completion to win")
	}

	w, err := mgr.Get(ctx, "w1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if w.Status != domain.WatchStatusCompleted {
		t.Errorf("expected completed, got %s", w.Status)
	}
	if w.TxHash != "txabc" {
		t.Errorf("expected tx hash txabc, got %s", w.TxHash)
	}
	if w.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
	if w.BlockTimestamp != 1712345678901 {
		t.Errorf("expected block timestamp carried over, got %d", w.BlockTimestamp)
	}
}

func TestTryComplete_SecondCallLoses(t *testing.T) {
	mgr, repo := newTestManager(t)
	ctx := context.Background()
	createPending(t, repo, "w1")

	if ok, _ := mgr.TryComplete(ctx, "w1", "txabc", decimal.New(5, 0), 1000); !ok {
		t.Fatal("first completion should win")
	}
	ok, err := mgr.TryComplete(ctx, "w1", "txdef", decimal.New(5, 0), 2000)
	if err != nil {
		t.Fatalf("second TryComplete must not error: %v", err)
	}
	if ok {
		t.Fatal("second completion must be a no-op")
	}

	w, _ := mgr.Get(ctx, "w1")
	if w.TxHash != "txabc" {
		t.Errorf("tx hash must be immutable once set, got %s", w.TxHash)
	}
}

func TestTryExpire_ThenCompleteRejected(t *testing.T) {
	mgr, repo := newTestManager(t)
	ctx := context.Background()
	createPending(t, repo, "w1")

	if ok, _ := mgr.TryExpire(ctx, "w1"); !ok {
		t.Fatal("expire should win on pending watch")
	}

	// A matching transfer arriving after expiry must not complete the watch.
	ok, err := mgr.TryComplete(ctx, "w1", "txlate", decimal.New(10, 0), 3000)
	if err != nil {
		t.Fatalf("TryComplete after expire: %v", err)
	}
	if ok {
		t.Fatal("expired watch must never complete")
	}

	w, _ := mgr.Get(ctx, "w1")
	if w.Status != domain.WatchStatusExpired {
		t.Errorf("expected expired, got %s", w.Status)
	}
}

func TestTryExpire_NonPendingNoOp(t *testing.T) {
	mgr, repo := newTestManager(t)
	ctx := context.Background()
	createPending(t, repo, "w1")

	mgr.TryComplete(ctx, "w1", "txabc", decimal.New(1, 0), 1000)
	ok, err := mgr.TryExpire(ctx, "w1")
	if err != nil {
		t.Fatalf("TryExpire: %v", err)
	}
	if ok {
		t.Fatal("completed watch must not expire")
	}
}

func TestTryComplete_ConcurrentSingleWinner(t *testing.T) {
	mgr, repo := newTestManager(t)
	ctx := context.Background()
	createPending(t, repo, "w1")

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan string, workers)

	for i := 0; i < workers; i++ {
		hash := string(rune('a' + i))
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			if ok, _ := mgr.TryComplete(ctx, "w1", "tx-"+h, decimal.New(10, 0), 1000); ok {
				wins <- h
			}
		}(hash)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for h := range wins {
		winners = append(winners, h)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winning completion, got %d", len(winners))
	}
}

func TestGet_NotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Get(context.Background(), "missing")
	if err != domain.ErrWatchNotFound {
		t.Errorf("expected ErrWatchNotFound, got %v", err)
	}
}
