package storage

import (
	"context"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// WatchRepository handles durable watch storage. Implementations must make
// the conditional status updates single atomic writes: they are the only
// correctness guarantee the monitoring core relies on under concurrent
// pollers, sweepers and multiple process instances.
type WatchRepository interface {
	// Create persists a new watch. Returns domain.ErrDuplicateOrderID if
	// the order id is already taken.
	Create(ctx context.Context, w *domain.Watch) error

	// GetByID retrieves a watch. Returns domain.ErrWatchNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.Watch, error)

	// GetByOrderID retrieves a watch by its external order id.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Watch, error)

	// ListPending retrieves all pending watches, oldest first.
	ListPending(ctx context.Context) ([]*domain.Watch, error)

	// ListPendingByAddress retrieves pending watches for one address,
	// oldest first.
	ListPendingByAddress(ctx context.Context, address string) ([]*domain.Watch, error)

	// ListExpired retrieves pending watches whose deadline has passed.
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Watch, error)

	// ClaimedTxHashes reports which of the given transaction hashes are
	// already bound to some watch.
	ClaimedTxHashes(ctx context.Context, hashes []string) (map[string]bool, error)

	// CompleteIfPending atomically moves the watch from pending to
	// completed, setting the completion fields, iff the stored status is
	// still pending. Returns true iff this call performed the transition.
	CompleteIfPending(ctx context.Context, id string, fields domain.CompletionFields) (bool, error)

	// SetStatusIfPending atomically moves the watch from pending to the
	// given terminal status. Returns true iff this call performed the
	// transition.
	SetStatusIfPending(ctx context.Context, id string, to domain.WatchStatus) (bool, error)

	// RecordCallbackAttempt increments the callback attempt counter and
	// stamps the attempt time.
	RecordCallbackAttempt(ctx context.Context, id string, at time.Time) error

	// MarkCallbackDelivered sets the delivered flag.
	MarkCallbackDelivered(ctx context.Context, id string) error

	// CountByStatus returns watch counts keyed by status.
	CountByStatus(ctx context.Context) (map[domain.WatchStatus]int, error)

	// ListRecent retrieves the most recently created watches.
	ListRecent(ctx context.Context, limit int) ([]*domain.Watch, error)
}

// CursorRepository handles per-address poll cursor storage.
type CursorRepository interface {
	// Get retrieves the cursor for an address. A missing cursor is not an
	// error: a zero-timestamp cursor is returned instead.
	Get(ctx context.Context, address string) (*domain.PollCursor, error)

	// Advance moves the cursor forward to the given timestamp. The update
	// is monotonic: an older timestamp leaves the stored value untouched.
	Advance(ctx context.Context, address string, ts int64) error
}

// EventRepository handles the append-only watch audit log.
type EventRepository interface {
	Append(ctx context.Context, watchID string, typ domain.WatchEventType, message string) error
	ListByWatch(ctx context.Context, watchID string) ([]*domain.WatchEvent, error)
	DeleteBefore(ctx context.Context, t time.Time) (int64, error)
}
