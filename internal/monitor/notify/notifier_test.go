package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage/memory"
)

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		AttemptTimeout: 2 * time.Second,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}
}

func seedCompletedWatch(t *testing.T, store *memory.MemoryStorage, callbackURL string) *domain.Watch {
	t.Helper()
	repo := memory.NewWatchRepo(store)
	w := &domain.Watch{
		ID:             "a4f7c2e1-0000-4000-8000-000000000001",
		Address:        "TLyqzVGLV1srkB7dToTAEqgDSfPtXRJZYH",
		ExpectedAmount: decimal.RequireFromString("10.50"),
		OrderID:        "order-123",
		CallbackURL:    callbackURL,
		Status:         domain.WatchStatusPending,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), w))
	ok, err := repo.CompleteIfPending(context.Background(), w.ID, domain.CompletionFields{
		TxHash:         "deadbeef01",
		ReceivedAmount: decimal.RequireFromString("10.50"),
		BlockTimestamp: 1700000000000,
		CompletedAt:    time.Now(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	return got
}

func TestNotifier_DeliversPayload(t *testing.T) {
	var got Payload
	received := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		close(received)
	}))
	defer srv.Close()

	store := memory.NewMemoryStorage()
	watch := seedCompletedWatch(t, store, srv.URL)
	watches := memory.NewWatchRepo(store)
	events := memory.NewEventRepo(store)

	n := NewNotifier(testConfig(), NewWebhookClient(), watches, events, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	require.True(t, n.Enqueue(watch))

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	assert.Equal(t, watch.ID, got.PaymentID)
	assert.Equal(t, "order-123", got.OrderID)
	assert.Equal(t, "USDT_TRC20", got.Currency)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "deadbeef01", got.TxHash)
	assert.True(t, got.ReceivedAmount.Equal(decimal.RequireFromString("10.50")))

	// Delivered flag lands shortly after the 2xx.
	assert.Eventually(t, func() bool {
		w, err := watches.GetByID(context.Background(), watch.ID)
		return err == nil && w.CallbackDelivered
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	n.Stop()
}

func TestNotifier_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memory.NewMemoryStorage()
	watch := seedCompletedWatch(t, store, srv.URL)
	watches := memory.NewWatchRepo(store)
	events := memory.NewEventRepo(store)

	n := NewNotifier(testConfig(), NewWebhookClient(), watches, events, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	require.True(t, n.Enqueue(watch))

	assert.Eventually(t, func() bool {
		w, err := watches.GetByID(context.Background(), watch.ID)
		return err == nil && w.CallbackDelivered
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(3), calls.Load())

	w, err := watches.GetByID(context.Background(), watch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, w.CallbackAttempts)
	assert.NotNil(t, w.LastCallbackAt)
}

func TestNotifier_ExhaustionKeepsWatchCompleted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := memory.NewMemoryStorage()
	watch := seedCompletedWatch(t, store, srv.URL)
	watches := memory.NewWatchRepo(store)
	events := memory.NewEventRepo(store)

	n := NewNotifier(testConfig(), NewWebhookClient(), watches, events, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx)

	require.True(t, n.Enqueue(watch))

	assert.Eventually(t, func() bool {
		evs, err := events.ListByWatch(context.Background(), watch.ID)
		if err != nil {
			return false
		}
		for _, ev := range evs {
			if ev.Type == domain.EventCallbackExhausted {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(3), calls.Load())

	w, err := watches.GetByID(context.Background(), watch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WatchStatusCompleted, w.Status)
	assert.False(t, w.CallbackDelivered)
	assert.Equal(t, 3, w.CallbackAttempts)
}

func TestNotifier_ShutdownMidBackoffNotExhaustion(t *testing.T) {
	attempted := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempted <- struct{}{}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := memory.NewMemoryStorage()
	watch := seedCompletedWatch(t, store, srv.URL)
	watches := memory.NewWatchRepo(store)
	events := memory.NewEventRepo(store)

	// Backoff far longer than the test so cancellation lands mid-wait.
	cfg := testConfig()
	cfg.InitialBackoff = time.Minute
	cfg.MaxBackoff = time.Minute

	n := NewNotifier(cfg, NewWebhookClient(), watches, events, 16)
	ctx, cancel := context.WithCancel(context.Background())
	n.Start(ctx)

	require.True(t, n.Enqueue(watch))

	select {
	case <-attempted:
	case <-time.After(5 * time.Second):
		t.Fatal("first delivery attempt never happened")
	}
	cancel()
	n.Stop()

	// The retry budget was not used up: no exhaustion record, and the
	// watch stays eligible for operator replay.
	evs, err := events.ListByWatch(context.Background(), watch.ID)
	require.NoError(t, err)
	for _, ev := range evs {
		assert.NotEqual(t, domain.EventCallbackExhausted, ev.Type)
	}

	w, err := watches.GetByID(context.Background(), watch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WatchStatusCompleted, w.Status)
	assert.Equal(t, 1, w.CallbackAttempts)
}

func TestNotifier_EnqueueFullQueue(t *testing.T) {
	store := memory.NewMemoryStorage()
	watches := memory.NewWatchRepo(store)
	events := memory.NewEventRepo(store)

	// Worker never started: the queue only drains by capacity.
	n := NewNotifier(testConfig(), NewWebhookClient(), watches, events, 1)

	w := &domain.Watch{ID: "w1", Status: domain.WatchStatusCompleted}
	assert.True(t, n.Enqueue(w))
	assert.False(t, n.Enqueue(w))
	assert.Equal(t, 1, n.QueueDepth())
}
