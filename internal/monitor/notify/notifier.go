package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/monitor/metrics"
)

// Config controls webhook delivery retries.
type Config struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Notifier delivers completion webhooks for settled watches. Deliveries
// are queued on a bounded channel so a slow merchant endpoint never
// blocks the poll loop.
type Notifier struct {
	cfg     Config
	client  *WebhookClient
	watches storage.WatchRepository
	events  storage.EventRepository
	log     *slog.Logger

	queue chan *domain.Watch
	wg    sync.WaitGroup
}

// NewNotifier creates a notifier with the given queue capacity.
func NewNotifier(
	cfg Config,
	client *WebhookClient,
	watches storage.WatchRepository,
	events storage.EventRepository,
	queueSize int,
) *Notifier {
	return &Notifier{
		cfg:     cfg,
		client:  client,
		watches: watches,
		events:  events,
		log:     slog.Default().With("component", "notifier"),
		queue:   make(chan *domain.Watch, queueSize),
	}
}

// Start launches the delivery worker. It drains the queue until ctx is
// cancelled.
func (n *Notifier) Start(ctx context.Context) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case w := <-n.queue:
				metrics.NotifyQueueDepth.Set(float64(len(n.queue)))
				n.deliver(ctx, w)
			}
		}
	}()
}

// Stop waits for the worker to finish its current delivery.
func (n *Notifier) Stop() {
	n.wg.Wait()
}

// Enqueue queues a completed watch for webhook delivery without
// blocking. Returns false when the queue is full; the watch stays
// completed and delivery can be retried by operator tooling.
func (n *Notifier) Enqueue(w *domain.Watch) bool {
	select {
	case n.queue <- w:
		metrics.NotifyQueueDepth.Set(float64(len(n.queue)))
		return true
	default:
		n.log.Warn("notify queue full, dropping delivery", "watch_id", w.ID)
		return false
	}
}

// QueueDepth reports the number of deliveries waiting in the queue.
func (n *Notifier) QueueDepth() int {
	return len(n.queue)
}

// deliver posts the webhook with exponential backoff. Every attempt is
// recorded on the watch row. Exhausting all attempts never changes the
// watch status: payment settlement and merchant notification are
// independent outcomes.
func (n *Notifier) deliver(ctx context.Context, w *domain.Watch) {
	payload := PayloadFor(w)

	backoff := retry.NewExponential(n.cfg.InitialBackoff)
	backoff = retry.WithCappedDuration(n.cfg.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(n.cfg.MaxAttempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := n.watches.RecordCallbackAttempt(ctx, w.ID, time.Now()); err != nil {
			n.log.Error("failed to record callback attempt", "watch_id", w.ID, "error", err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, n.cfg.AttemptTimeout)
		defer cancel()

		if err := n.client.Deliver(attemptCtx, w.CallbackURL, payload); err != nil {
			metrics.WebhookAttempts.WithLabelValues("failure").Inc()
			n.log.Warn("webhook delivery failed",
				"watch_id", w.ID,
				"order_id", w.OrderID,
				"error", err)
			return retry.RetryableError(err)
		}

		metrics.WebhookAttempts.WithLabelValues("success").Inc()
		return nil
	})

	if err != nil {
		// A shutdown mid-backoff is not exhaustion: the retry budget
		// was not used up, so leave no exhaustion record behind.
		if ctx.Err() != nil {
			n.log.Info("webhook delivery interrupted by shutdown",
				"watch_id", w.ID,
				"order_id", w.OrderID)
			return
		}
		n.log.Error("webhook delivery exhausted",
			"watch_id", w.ID,
			"order_id", w.OrderID,
			"max_attempts", n.cfg.MaxAttempts,
			"error", err)
		if aerr := n.events.Append(ctx, w.ID, domain.EventCallbackExhausted,
			"webhook delivery failed after all attempts"); aerr != nil {
			n.log.Error("failed to append event", "watch_id", w.ID, "error", aerr)
		}
		return
	}

	if err := n.watches.MarkCallbackDelivered(ctx, w.ID); err != nil {
		n.log.Error("failed to mark callback delivered", "watch_id", w.ID, "error", err)
	}
	if err := n.events.Append(ctx, w.ID, domain.EventCallbackDelivered, "webhook acknowledged"); err != nil {
		n.log.Error("failed to append event", "watch_id", w.ID, "error", err)
	}
	n.log.Info("webhook delivered", "watch_id", w.ID, "order_id", w.OrderID)
}
