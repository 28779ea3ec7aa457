// Package service exposes the watch registration API used by operator
// tooling and embedding applications.
package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
)

// CreateWatchRequest holds the inputs for registering a payment watch.
type CreateWatchRequest struct {
	Address        string
	ExpectedAmount decimal.Decimal
	OrderID        string
	CallbackURL    string

	// TTL overrides the default watch lifetime when positive.
	TTL time.Duration
}

// Service registers and queries payment watches.
type Service struct {
	watches    storage.WatchRepository
	events     storage.EventRepository
	defaultTTL time.Duration
	log        *slog.Logger
}

// NewService creates a watch service.
func NewService(watches storage.WatchRepository, events storage.EventRepository, defaultTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &Service{
		watches:    watches,
		events:     events,
		defaultTTL: defaultTTL,
		log:        slog.Default().With("component", "service"),
	}
}

// CreateWatch validates the request and persists a new pending watch.
func (s *Service) CreateWatch(ctx context.Context, req CreateWatchRequest) (*domain.Watch, error) {
	if err := validateAddress(req.Address); err != nil {
		return nil, err
	}
	if !req.ExpectedAmount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if req.OrderID == "" {
		return nil, domain.ErrInvalidOrderID
	}
	if err := validateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := time.Now()
	w := &domain.Watch{
		ID:             uuid.NewString(),
		Address:        req.Address,
		ExpectedAmount: req.ExpectedAmount,
		OrderID:        req.OrderID,
		CallbackURL:    req.CallbackURL,
		Status:         domain.WatchStatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}

	if err := s.watches.Create(ctx, w); err != nil {
		return nil, err
	}
	if err := s.events.Append(ctx, w.ID, domain.EventWatchCreated, "watch registered"); err != nil {
		s.log.Error("failed to append event", "watch_id", w.ID, "error", err)
	}

	s.log.Info("Watch created",
		"watch_id", w.ID,
		"order_id", w.OrderID,
		"address", w.Address,
		"expected_amount", w.ExpectedAmount.String(),
		"expires_at", w.ExpiresAt)
	return w, nil
}

// GetWatch retrieves a watch by id.
func (s *Service) GetWatch(ctx context.Context, id string) (*domain.Watch, error) {
	return s.watches.GetByID(ctx, id)
}

// GetWatchByOrderID retrieves a watch by its external order id.
func (s *Service) GetWatchByOrderID(ctx context.Context, orderID string) (*domain.Watch, error) {
	return s.watches.GetByOrderID(ctx, orderID)
}

// ListEvents retrieves the audit log of one watch, oldest first.
func (s *Service) ListEvents(ctx context.Context, watchID string) ([]*domain.WatchEvent, error) {
	if _, err := s.watches.GetByID(ctx, watchID); err != nil {
		return nil, err
	}
	return s.events.ListByWatch(ctx, watchID)
}

// validateAddress accepts TRON base58check addresses: "T" followed by
// 33 base58 characters.
func validateAddress(addr string) error {
	if len(addr) != 34 || addr[0] != 'T' {
		return domain.ErrInvalidAddress
	}
	for _, c := range addr[1:] {
		if !isBase58(c) {
			return domain.ErrInvalidAddress
		}
	}
	return nil
}

func isBase58(c rune) bool {
	switch {
	case c >= '1' && c <= '9':
		return true
	case c >= 'A' && c <= 'Z':
		return c != 'I' && c != 'O'
	case c >= 'a' && c <= 'z':
		return c != 'l'
	}
	return false
}

func validateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ErrInvalidCallbackURL
	}
	return nil
}
