// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full system health report.
type Report struct {
	Status          SystemStatus `json:"status"`
	PendingWatches  int          `json:"pending_watches"`
	CompletedTotal  int          `json:"completed_total"`
	ExpiredTotal    int          `json:"expired_total"`
	FailedTotal     int          `json:"failed_total"`
	LastPollAgeSecs float64      `json:"last_poll_age_seconds"`
	NotifyQueue     int          `json:"notify_queue_depth"`
	DatabaseOK      bool         `json:"database_ok"`
}
