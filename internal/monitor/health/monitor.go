package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
)

// PollClock reports when the last poll cycle finished.
type PollClock interface {
	LastPoll() time.Time
}

// QueueProbe reports the webhook delivery backlog.
type QueueProbe interface {
	QueueDepth() int
}

// Pinger checks a backing store connection.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from the watch store, the poll loop
// and the delivery queue.
type Monitor struct {
	watches      storage.WatchRepository
	poll         PollClock
	queue        QueueProbe
	db           Pinger // nil for in-memory storage
	pollInterval time.Duration

	lastCheck  time.Time
	lastReport Report
	mu         sync.RWMutex
}

// NewMonitor creates a health monitor. db may be nil.
func NewMonitor(
	watches storage.WatchRepository,
	poll PollClock,
	queue QueueProbe,
	db Pinger,
	pollInterval time.Duration,
) *Monitor {
	return &Monitor{
		watches:      watches,
		poll:         poll,
		queue:        queue,
		db:           db,
		pollInterval: pollInterval,
	}
}

// CheckHealth builds the current health report.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering the store from probes
	if time.Since(m.lastCheck) < 10*time.Second && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	report := Report{Status: StatusHealthy, DatabaseOK: true}

	counts, err := m.watches.CountByStatus(ctx)
	if err != nil {
		report.Status = StatusDegraded
	} else {
		report.PendingWatches = counts[domain.WatchStatusPending]
		report.CompletedTotal = counts[domain.WatchStatusCompleted]
		report.ExpiredTotal = counts[domain.WatchStatusExpired]
		report.FailedTotal = counts[domain.WatchStatusFailed]
	}

	if m.db != nil {
		if err := m.db.Health(ctx); err != nil {
			report.DatabaseOK = false
			report.Status = StatusCritical
		}
	}

	if m.poll != nil {
		last := m.poll.LastPoll()
		if !last.IsZero() {
			age := time.Since(last)
			report.LastPollAgeSecs = age.Seconds()
			// A poll loop more than five intervals behind is stuck.
			if age > 5*m.pollInterval && report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}

	if m.queue != nil {
		report.NotifyQueue = m.queue.QueueDepth()
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
