package outbox

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/storefront/internal/metrics"
	"github.com/corray333/backend-labs/storefront/internal/service/models/outbox"
)

// Publisher delivers one outbox message to a broker.
type Publisher interface {
	Publish(ctx context.Context, msg outbox.OutboxMessage) error
}

// Config controls polling and redelivery.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	// RetryInterval is the first redelivery delay; it doubles on every failure.
	RetryInterval time.Duration
}

// Worker processes messages from the outbox table.
type Worker struct {
	outboxRepo    ioutboxrepo.IOutboxRepository
	publisher     Publisher
	pollInterval  time.Duration
	batchSize     int
	retryInterval time.Duration
	now           func() time.Time
	stopCh        chan struct{}
}

// NewWorker creates a new outbox worker.
func NewWorker(
	outboxRepo ioutboxrepo.IOutboxRepository,
	publisher Publisher,
	cfg Config,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}

	return &Worker{
		outboxRepo:    outboxRepo,
		publisher:     publisher,
		pollInterval:  cfg.PollInterval,
		batchSize:     cfg.BatchSize,
		retryInterval: cfg.RetryInterval,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Start begins processing messages from the outbox.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// processMessages retrieves and processes pending messages from the outbox.
func (w *Worker) processMessages(ctx context.Context) {
	messages, err := w.outboxRepo.GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from outbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Processing outbox messages", "count", len(messages))

	for i, msg := range messages {
		err := w.publisher.Publish(ctx, msg)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Open circuit: rows stay as they are for a later tick.
			metrics.OutboxPublished.WithLabelValues("skipped").Inc()
			slog.Warn("Outbox publisher circuit is open, postponing batch", "remaining", len(messages)-i)

			return
		}

		if err != nil {
			metrics.OutboxPublished.WithLabelValues("failed").Inc()
			w.reschedule(ctx, msg, err)

			continue
		}

		metrics.OutboxPublished.WithLabelValues("published").Inc()
		if err := w.outboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from outbox after successful publish",
				"outbox_id", msg.ID,
				"error", err,
			)
		} else {
			slog.Debug("Message successfully published and removed from outbox", "outbox_id", msg.ID)
		}
	}
}

// reschedule records a failed delivery with exponential backoff.
func (w *Worker) reschedule(ctx context.Context, msg outbox.OutboxMessage, cause error) {
	newRetryCount := msg.RetryCount + 1
	backoff := time.Duration(math.Pow(2, float64(newRetryCount-1))) * w.retryInterval
	nextRetryAt := w.now().Add(backoff)

	if newRetryCount >= msg.MaxRetries {
		slog.Error("Outbox message exhausted its retries",
			"outbox_id", msg.ID,
			"topic", msg.Topic,
			"routing_key", msg.RoutingKey,
			"error", cause,
		)
	} else {
		slog.Warn("Failed to publish message from outbox, will retry",
			"outbox_id", msg.ID,
			"retry_count", newRetryCount,
			"next_retry", nextRetryAt,
			"error", cause,
		)
	}

	if err := w.outboxRepo.UpdateRetry(ctx, msg.ID, newRetryCount, cause.Error(), nextRetryAt); err != nil {
		slog.Error("Failed to update retry information", "outbox_id", msg.ID, "error", err)
	}
}
