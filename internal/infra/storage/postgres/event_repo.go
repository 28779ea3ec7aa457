package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// EventRepo implements storage.EventRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

// Append writes one audit log entry.
func (r *EventRepo) Append(ctx context.Context, watchID string, typ domain.WatchEventType, message string) error {
	query := `
		INSERT INTO watch_events (watch_id, event_type, message, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := r.db.ExecContext(ctx, query, watchID, string(typ), message); err != nil {
		return fmt.Errorf("failed to append watch event: %w", err)
	}
	return nil
}

// ListByWatch retrieves all events for one watch, oldest first.
func (r *EventRepo) ListByWatch(ctx context.Context, watchID string) ([]*domain.WatchEvent, error) {
	var rows []struct {
		ID        int64     `db:"id"`
		WatchID   string    `db:"watch_id"`
		EventType string    `db:"event_type"`
		Message   string    `db:"message"`
		CreatedAt time.Time `db:"created_at"`
	}
	query := `SELECT id, watch_id, event_type, message, created_at FROM watch_events WHERE watch_id = $1 ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &rows, query, watchID); err != nil {
		return nil, fmt.Errorf("failed to list watch events: %w", err)
	}

	events := make([]*domain.WatchEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, &domain.WatchEvent{
			ID:        row.ID,
			WatchID:   row.WatchID,
			Type:      domain.WatchEventType(row.EventType),
			Message:   row.Message,
			CreatedAt: row.CreatedAt,
		})
	}
	return events, nil
}

// DeleteBefore removes events older than t. Returns the number deleted.
func (r *EventRepo) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watch_events WHERE created_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to delete watch events: %w", err)
	}
	return res.RowsAffected()
}
