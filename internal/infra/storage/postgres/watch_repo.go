package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// WatchRepo implements storage.WatchRepository using PostgreSQL. The
// conditional status updates compile to single UPDATE ... WHERE status =
// 'pending' statements, which is the compare-and-swap the lifecycle
// manager depends on.
type WatchRepo struct {
	db *DB
}

// NewWatchRepo creates a new PostgreSQL watch repository.
func NewWatchRepo(db *DB) *WatchRepo {
	return &WatchRepo{db: db}
}

type watchRow struct {
	ID                string          `db:"id"`
	Address           string          `db:"address"`
	ExpectedAmount    decimal.Decimal `db:"expected_amount"`
	OrderID           string          `db:"order_id"`
	CallbackURL       string          `db:"callback_url"`
	Status            string          `db:"status"`
	TxHash            sql.NullString  `db:"tx_hash"`
	ReceivedAmount    decimal.NullDecimal `db:"received_amount"`
	BlockTimestamp    sql.NullInt64   `db:"block_timestamp"`
	CreatedAt         time.Time       `db:"created_at"`
	ExpiresAt         time.Time       `db:"expires_at"`
	CompletedAt       *time.Time      `db:"completed_at"`
	CallbackAttempts  int             `db:"callback_attempts"`
	LastCallbackAt    *time.Time      `db:"last_callback_at"`
	CallbackDelivered bool            `db:"callback_delivered"`
}

func (r *watchRow) toDomain() *domain.Watch {
	w := &domain.Watch{
		ID:                r.ID,
		Address:           r.Address,
		ExpectedAmount:    r.ExpectedAmount,
		OrderID:           r.OrderID,
		CallbackURL:       r.CallbackURL,
		Status:            domain.WatchStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		ExpiresAt:         r.ExpiresAt,
		CompletedAt:       r.CompletedAt,
		CallbackAttempts:  r.CallbackAttempts,
		LastCallbackAt:    r.LastCallbackAt,
		CallbackDelivered: r.CallbackDelivered,
	}
	if r.TxHash.Valid {
		w.TxHash = r.TxHash.String
	}
	if r.ReceivedAmount.Valid {
		w.ReceivedAmount = r.ReceivedAmount.Decimal
	}
	if r.BlockTimestamp.Valid {
		w.BlockTimestamp = r.BlockTimestamp.Int64
	}
	return w
}

const watchColumns = `
	id, address, expected_amount, order_id, callback_url, status,
	tx_hash, received_amount, block_timestamp,
	created_at, expires_at, completed_at,
	callback_attempts, last_callback_at, callback_delivered
`

// Create persists a new watch.
func (r *WatchRepo) Create(ctx context.Context, w *domain.Watch) error {
	query := `
		INSERT INTO watches (
			id, address, expected_amount, order_id, callback_url, status,
			created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.Address, w.ExpectedAmount, w.OrderID, w.CallbackURL,
		string(w.Status), w.CreatedAt, w.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		// 23505 = unique_violation (order_id)
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrDuplicateOrderID
		}
		return fmt.Errorf("failed to create watch: %w", err)
	}
	return nil
}

// GetByID retrieves a watch by id.
func (r *WatchRepo) GetByID(ctx context.Context, id string) (*domain.Watch, error) {
	return r.getOne(ctx, `SELECT `+watchColumns+` FROM watches WHERE id = $1`, id)
}

// GetByOrderID retrieves a watch by order id.
func (r *WatchRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Watch, error) {
	return r.getOne(ctx, `SELECT `+watchColumns+` FROM watches WHERE order_id = $1`, orderID)
}

func (r *WatchRepo) getOne(ctx context.Context, query string, arg any) (*domain.Watch, error) {
	var row watchRow
	err := r.db.GetContext(ctx, &row, query, arg)
	if err == sql.ErrNoRows {
		return nil, domain.ErrWatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watch: %w", err)
	}
	return row.toDomain(), nil
}

// ListPending retrieves all pending watches, oldest first.
func (r *WatchRepo) ListPending(ctx context.Context) ([]*domain.Watch, error) {
	query := `SELECT ` + watchColumns + ` FROM watches WHERE status = 'pending' ORDER BY created_at ASC`
	return r.list(ctx, query)
}

// ListPendingByAddress retrieves pending watches for one address, oldest first.
func (r *WatchRepo) ListPendingByAddress(ctx context.Context, address string) ([]*domain.Watch, error) {
	query := `SELECT ` + watchColumns + ` FROM watches WHERE status = 'pending' AND address = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, address)
}

// ListExpired retrieves pending watches whose deadline has passed.
func (r *WatchRepo) ListExpired(ctx context.Context, now time.Time) ([]*domain.Watch, error) {
	query := `SELECT ` + watchColumns + ` FROM watches WHERE status = 'pending' AND expires_at < $1 ORDER BY created_at ASC`
	return r.list(ctx, query, now)
}

// ListRecent retrieves the most recently created watches.
func (r *WatchRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Watch, error) {
	query := `SELECT ` + watchColumns + ` FROM watches ORDER BY created_at DESC LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *WatchRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Watch, error) {
	var rows []watchRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list watches: %w", err)
	}
	watches := make([]*domain.Watch, 0, len(rows))
	for i := range rows {
		watches = append(watches, rows[i].toDomain())
	}
	return watches, nil
}

// ClaimedTxHashes reports which hashes are already bound to a watch.
func (r *WatchRepo) ClaimedTxHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	claimed := make(map[string]bool)
	if len(hashes) == 0 {
		return claimed, nil
	}

	query := `SELECT tx_hash FROM watches WHERE tx_hash = ANY($1)`
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, pq.Array(hashes)); err != nil {
		return nil, fmt.Errorf("failed to query claimed hashes: %w", err)
	}
	for _, h := range found {
		claimed[h] = true
	}
	return claimed, nil
}

// CompleteIfPending atomically completes a pending watch. The WHERE clause
// on status makes this a compare-and-swap; the partial unique index on
// tx_hash rejects a hash already claimed by another watch.
func (r *WatchRepo) CompleteIfPending(ctx context.Context, id string, fields domain.CompletionFields) (bool, error) {
	query := `
		UPDATE watches
		SET status = 'completed',
		    tx_hash = $2,
		    received_amount = $3,
		    block_timestamp = $4,
		    completed_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query,
		id, fields.TxHash, fields.ReceivedAmount, fields.BlockTimestamp, fields.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		// Unique violation on tx_hash: the transfer was claimed by another
		// watch between matching and this write. Conflict, not an error.
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("failed to complete watch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetStatusIfPending atomically moves a pending watch to a terminal status.
func (r *WatchRepo) SetStatusIfPending(ctx context.Context, id string, to domain.WatchStatus) (bool, error) {
	query := `UPDATE watches SET status = $2 WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, string(to))
	if err != nil {
		return false, fmt.Errorf("failed to set watch status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordCallbackAttempt increments the attempt counter.
func (r *WatchRepo) RecordCallbackAttempt(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE watches
		SET callback_attempts = callback_attempts + 1, last_callback_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to record callback attempt: %w", err)
	}
	return nil
}

// MarkCallbackDelivered sets the delivered flag.
func (r *WatchRepo) MarkCallbackDelivered(ctx context.Context, id string) error {
	query := `UPDATE watches SET callback_delivered = TRUE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark callback delivered: %w", err)
	}
	return nil
}

// CountByStatus returns watch counts keyed by status.
func (r *WatchRepo) CountByStatus(ctx context.Context) (map[domain.WatchStatus]int, error) {
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}
	query := `SELECT status, COUNT(*) AS count FROM watches GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count watches: %w", err)
	}
	counts := make(map[domain.WatchStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.WatchStatus(row.Status)] = row.Count
	}
	return counts, nil
}
