package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get retrieves the cursor for an address. A missing row yields a
// zero-timestamp cursor, not an error.
func (r *CursorRepo) Get(ctx context.Context, address string) (*domain.PollCursor, error) {
	var row struct {
		Address       string    `db:"address"`
		LastTimestamp int64     `db:"last_timestamp"`
		UpdatedAt     time.Time `db:"updated_at"`
	}
	query := `SELECT address, last_timestamp, updated_at FROM poll_cursors WHERE address = $1`
	err := r.db.GetContext(ctx, &row, query, address)
	if err == sql.ErrNoRows {
		return &domain.PollCursor{Address: address}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &domain.PollCursor{
		Address:       row.Address,
		LastTimestamp: row.LastTimestamp,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

// Advance upserts the cursor, keeping the stored high-water mark monotonic:
// GREATEST rejects stale timestamps from overlapping or retried cycles.
func (r *CursorRepo) Advance(ctx context.Context, address string, ts int64) error {
	query := `
		INSERT INTO poll_cursors (address, last_timestamp, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE SET
			last_timestamp = GREATEST(poll_cursors.last_timestamp, EXCLUDED.last_timestamp),
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, address, ts); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}
