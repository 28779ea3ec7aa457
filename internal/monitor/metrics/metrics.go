package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles tracks completed poll cycles.
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywatch_poll_cycles_total",
			Help: "Total number of completed poll cycles",
		},
	)

	// LedgerRequests tracks TronGrid calls by outcome (ok, throttled, error).
	LedgerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_ledger_requests_total",
			Help: "Total number of ledger queries",
		},
		[]string{"outcome"},
	)

	// LedgerLatency tracks TronGrid call latency.
	LedgerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paywatch_ledger_latency_seconds",
			Help:    "Ledger query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MatchesFound tracks transfer-to-watch matches produced by the matcher.
	MatchesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywatch_matches_total",
			Help: "Total number of transfer matches",
		},
	)

	// WatchesCompleted tracks watches moved to completed.
	WatchesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywatch_watches_completed_total",
			Help: "Total number of watches completed",
		},
	)

	// WatchesExpired tracks watches moved to expired.
	WatchesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paywatch_watches_expired_total",
			Help: "Total number of watches expired",
		},
	)

	// WebhookAttempts tracks callback delivery attempts by outcome.
	WebhookAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_webhook_attempts_total",
			Help: "Total number of webhook delivery attempts",
		},
		[]string{"outcome"},
	)

	// PendingWatches tracks the number of pending watches seen by the
	// latest poll cycle.
	PendingWatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paywatch_pending_watches",
			Help: "Pending watches at the last poll cycle",
		},
	)

	// NotifyQueueDepth tracks the webhook delivery queue backlog.
	NotifyQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paywatch_notify_queue_depth",
			Help: "Watches waiting for webhook delivery",
		},
	)
)
