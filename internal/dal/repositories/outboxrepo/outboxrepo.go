package outboxrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/service/models/outbox"
)

const (
	table = "outbox"

	DefaultMaxRetries = 5
)

// OutboxRepository stores events awaiting delivery.
type OutboxRepository struct {
	q   storage.Querier
	now func() time.Time
}

// NewOutboxRepository creates a new outbox repository.
func NewOutboxRepository(q storage.Querier) *OutboxRepository {
	return &OutboxRepository{
		q:   q,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Insert adds a new message to the outbox.
func (r *OutboxRepository) Insert(ctx context.Context, msg outbox.OutboxMessage) error {
	now := r.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = now
	}
	if msg.NextRetryAt.IsZero() {
		msg.NextRetryAt = now
	}
	if msg.ContentType == "" {
		msg.ContentType = outbox.ContentTypeJSON
	}
	if msg.MaxRetries <= 0 {
		msg.MaxRetries = DefaultMaxRetries
	}

	_, err := r.q.Exec(ctx, sq.Insert(table).
		Columns(
			"topic",
			"routing_key",
			"payload",
			"content_type",
			"retry_count",
			"max_retries",
			"last_error",
			"created_at",
			"updated_at",
			"next_retry_at",
		).
		Values(
			msg.Topic,
			msg.RoutingKey,
			msg.Payload,
			msg.ContentType,
			msg.RetryCount,
			msg.MaxRetries,
			msg.LastError,
			msg.CreatedAt,
			msg.UpdatedAt,
			msg.NextRetryAt,
		),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox message: %w", err)
	}

	return nil
}

// GetPendingMessages retrieves messages that are due and have retries left.
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]outbox.OutboxMessage, error) {
	query := sq.Select(
		"id",
		"topic",
		"routing_key",
		"payload",
		"content_type",
		"retry_count",
		"max_retries",
		"last_error",
		"created_at",
		"updated_at",
		"next_retry_at",
	).
		From(table).
		Where(sq.LtOrEq{"next_retry_at": r.now()}).
		Where(sq.Expr("retry_count < max_retries")).
		OrderBy("next_retry_at ASC", "id ASC").
		Limit(uint64(limit))

	var messages []outbox.OutboxMessage
	err := r.q.Query(ctx, query, func(rows storage.Rows) error {
		messages = messages[:0]
		for rows.Next() {
			var msg outbox.OutboxMessage
			if err := rows.Scan(
				&msg.ID,
				&msg.Topic,
				&msg.RoutingKey,
				&msg.Payload,
				&msg.ContentType,
				&msg.RetryCount,
				&msg.MaxRetries,
				&msg.LastError,
				&msg.CreatedAt,
				&msg.UpdatedAt,
				&msg.NextRetryAt,
			); err != nil {
				return fmt.Errorf("failed to scan outbox message: %w", err)
			}
			messages = append(messages, msg)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox messages: %w", err)
	}

	return messages, nil
}

// Delete removes a message from the outbox after successful delivery.
func (r *OutboxRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, sq.Delete(table).Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("failed to delete outbox message: %w", err)
	}

	return nil
}

// UpdateRetry updates retry count and error information.
func (r *OutboxRepository) UpdateRetry(
	ctx context.Context,
	id int64,
	retryCount int,
	lastError string,
	nextRetryAt time.Time,
) error {
	_, err := r.q.Exec(ctx, sq.Update(table).
		Set("retry_count", retryCount).
		Set("last_error", lastError).
		Set("next_retry_at", nextRetryAt).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": id}),
	)
	if err != nil {
		return fmt.Errorf("failed to update outbox message: %w", err)
	}

	return nil
}
