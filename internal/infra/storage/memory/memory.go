// Package memory provides in-process repository implementations. Used when
// no database URL is configured (dev mode) and by tests. The conditional
// status updates honor the same compare-and-swap semantics as the postgres
// implementations, guarded by a mutex instead of a conditional UPDATE.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	watches  map[string]*domain.Watch
	byOrder  map[string]string // order id -> watch id
	byHash   map[string]string // tx hash -> watch id
	cursors  map[string]*domain.PollCursor
	events   []*domain.WatchEvent
	eventSeq int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		watches: make(map[string]*domain.Watch),
		byOrder: make(map[string]string),
		byHash:  make(map[string]string),
		cursors: make(map[string]*domain.PollCursor),
	}
}

// -----------------------------------------------------------------------------
// Watch Repository
// -----------------------------------------------------------------------------

type WatchRepo struct {
	store *MemoryStorage
}

func NewWatchRepo(store *MemoryStorage) *WatchRepo {
	return &WatchRepo{store: store}
}

func (r *WatchRepo) Create(ctx context.Context, w *domain.Watch) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.byOrder[w.OrderID]; exists {
		return domain.ErrDuplicateOrderID
	}
	c := *w
	r.store.watches[w.ID] = &c
	r.store.byOrder[w.OrderID] = w.ID
	return nil
}

func (r *WatchRepo) GetByID(ctx context.Context, id string) (*domain.Watch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	w, ok := r.store.watches[id]
	if !ok {
		return nil, domain.ErrWatchNotFound
	}
	c := *w
	return &c, nil
}

func (r *WatchRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Watch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.byOrder[orderID]
	if !ok {
		return nil, domain.ErrWatchNotFound
	}
	c := *r.store.watches[id]
	return &c, nil
}

func (r *WatchRepo) ListPending(ctx context.Context) ([]*domain.Watch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.collect(func(w *domain.Watch) bool {
		return w.Status == domain.WatchStatusPending
	}), nil
}

func (r *WatchRepo) ListPendingByAddress(ctx context.Context, address string) ([]*domain.Watch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.collect(func(w *domain.Watch) bool {
		return w.Status == domain.WatchStatusPending && w.Address == address
	}), nil
}

func (r *WatchRepo) ListExpired(ctx context.Context, now time.Time) ([]*domain.Watch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.collect(func(w *domain.Watch) bool {
		return w.Status == domain.WatchStatusPending && now.After(w.ExpiresAt)
	}), nil
}

// collect returns copies sorted oldest first. Caller holds the lock.
func (r *WatchRepo) collect(keep func(*domain.Watch) bool) []*domain.Watch {
	var out []*domain.Watch
	for _, w := range r.store.watches {
		if keep(w) {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *WatchRepo) ClaimedTxHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	claimed := make(map[string]bool)
	for _, h := range hashes {
		if _, ok := r.store.byHash[h]; ok {
			claimed[h] = true
		}
	}
	return claimed, nil
}

func (r *WatchRepo) CompleteIfPending(ctx context.Context, id string, fields domain.CompletionFields) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// Unknown id behaves like a lost race: zero rows match the
	// conditional update, same as the SQL backend.
	w, ok := r.store.watches[id]
	if !ok || w.Status != domain.WatchStatusPending {
		return false, nil
	}
	// Hash-level dedup: a transfer claimed by another watch stays claimed.
	if owner, taken := r.store.byHash[fields.TxHash]; taken && owner != id {
		return false, nil
	}

	w.Status = domain.WatchStatusCompleted
	w.TxHash = fields.TxHash
	w.ReceivedAmount = fields.ReceivedAmount
	w.BlockTimestamp = fields.BlockTimestamp
	completedAt := fields.CompletedAt
	w.CompletedAt = &completedAt
	r.store.byHash[fields.TxHash] = id
	return true, nil
}

func (r *WatchRepo) SetStatusIfPending(ctx context.Context, id string, to domain.WatchStatus) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w, ok := r.store.watches[id]
	if !ok || w.Status != domain.WatchStatusPending {
		return false, nil
	}
	w.Status = to
	return true, nil
}

func (r *WatchRepo) RecordCallbackAttempt(ctx context.Context, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w, ok := r.store.watches[id]
	if !ok {
		return domain.ErrWatchNotFound
	}
	w.CallbackAttempts++
	t := at
	w.LastCallbackAt = &t
	return nil
}

func (r *WatchRepo) MarkCallbackDelivered(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w, ok := r.store.watches[id]
	if !ok {
		return domain.ErrWatchNotFound
	}
	w.CallbackDelivered = true
	return nil
}

func (r *WatchRepo) CountByStatus(ctx context.Context) (map[domain.WatchStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[domain.WatchStatus]int)
	for _, w := range r.store.watches {
		counts[w.Status]++
	}
	return counts, nil
}

func (r *WatchRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Watch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all := r.collect(func(*domain.Watch) bool { return true })
	// collect sorts oldest first; recents come from the tail.
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, address string) (*domain.PollCursor, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if c, ok := r.store.cursors[address]; ok {
		cc := *c
		return &cc, nil
	}
	return &domain.PollCursor{Address: address}, nil
}

func (r *CursorRepo) Advance(ctx context.Context, address string, ts int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	c, ok := r.store.cursors[address]
	if !ok {
		r.store.cursors[address] = &domain.PollCursor{
			Address:       address,
			LastTimestamp: ts,
			UpdatedAt:     time.Now(),
		}
		return nil
	}
	if ts > c.LastTimestamp {
		c.LastTimestamp = ts
		c.UpdatedAt = time.Now()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Event Repository
// -----------------------------------------------------------------------------

type EventRepo struct {
	store *MemoryStorage
}

func NewEventRepo(store *MemoryStorage) *EventRepo {
	return &EventRepo{store: store}
}

func (r *EventRepo) Append(ctx context.Context, watchID string, typ domain.WatchEventType, message string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.eventSeq++
	r.store.events = append(r.store.events, &domain.WatchEvent{
		ID:        r.store.eventSeq,
		WatchID:   watchID,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now(),
	})
	return nil
}

func (r *EventRepo) ListByWatch(ctx context.Context, watchID string) ([]*domain.WatchEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.WatchEvent
	for _, ev := range r.store.events {
		if ev.WatchID == watchID {
			c := *ev
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *EventRepo) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.events[:0]
	var deleted int64
	for _, ev := range r.store.events {
		if ev.CreatedAt.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	r.store.events = kept
	return deleted, nil
}
