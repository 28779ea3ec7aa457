package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Watch represents a request to monitor one TRON address for one
// incoming USDT payment of a specific expected amount.
type Watch struct {
	ID             string
	Address        string
	ExpectedAmount decimal.Decimal
	OrderID        string
	CallbackURL    string

	Status         WatchStatus
	TxHash         string
	ReceivedAmount decimal.Decimal
	BlockTimestamp int64 // ms, of the matched transfer

	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time

	CallbackAttempts  int
	LastCallbackAt    *time.Time
	CallbackDelivered bool
}

type WatchStatus string

const (
	WatchStatusPending   WatchStatus = "pending"
	WatchStatusCompleted WatchStatus = "completed"
	WatchStatusExpired   WatchStatus = "expired"
	WatchStatusFailed    WatchStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s WatchStatus) Terminal() bool {
	switch s {
	case WatchStatusCompleted, WatchStatusExpired, WatchStatusFailed:
		return true
	}
	return false
}

// Expired reports whether the watch deadline has passed at the given time.
func (w *Watch) Expired(now time.Time) bool {
	return now.After(w.ExpiresAt)
}

// CompletionFields holds the fields set atomically alongside the
// pending -> completed status transition.
type CompletionFields struct {
	TxHash         string
	ReceivedAmount decimal.Decimal
	BlockTimestamp int64
	CompletedAt    time.Time
}

// Event types recorded in the watch audit log.
type WatchEventType string

const (
	EventWatchCreated      WatchEventType = "created"
	EventWatchCompleted    WatchEventType = "completed"
	EventWatchExpired      WatchEventType = "expired"
	EventWatchFailed       WatchEventType = "failed"
	EventCallbackDelivered WatchEventType = "callback_delivered"
	EventCallbackExhausted WatchEventType = "callback_exhausted"
)

// WatchEvent is one entry in the per-watch audit log.
type WatchEvent struct {
	ID        int64
	WatchID   string
	Type      WatchEventType
	Message   string
	CreatedAt time.Time
}
