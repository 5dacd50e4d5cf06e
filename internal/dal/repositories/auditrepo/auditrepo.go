package auditrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/auditlog"
)

const table = "audit_log_order"

// Repository writes the order audit trail.
type Repository struct {
	q storage.Querier
}

func New(q storage.Querier) *Repository {
	return &Repository{q: q}
}

// BatchInsert saves audit log entries with one multi-row insert. A message id
// that is already stored fails the whole batch with a *errs.ConflictError.
func (r *Repository) BatchInsert(ctx context.Context, entries []auditlog.AuditLogOrder) error {
	if len(entries) == 0 {
		return nil
	}

	builder := sq.Insert(table).
		Columns(
			"message_id",
			"order_id",
			"order_number",
			"user_id",
			"event",
			"order_status",
			"total",
			"created_at",
		)

	for _, e := range entries {
		builder = builder.Values(
			messageID(e.MessageID),
			e.OrderID,
			e.OrderNumber,
			e.UserID,
			e.Event,
			e.OrderStatus,
			e.Total,
			e.CreatedAt,
		)
	}

	if _, err := r.q.Exec(ctx, builder); err != nil {
		if storage.IsUniqueViolation(err) {
			return &errs.ConflictError{Reason: "audit log already recorded for message " + entries[0].MessageID}
		}

		return fmt.Errorf("failed to bulk insert audit logs: %w", err)
	}

	return nil
}

// messageID stores rows without an id as NULL so they never collide.
func messageID(id string) any {
	if id == "" {
		return nil
	}

	return id
}

// ListByOrder returns the audit trail of one order, oldest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]auditlog.AuditLogOrder, error) {
	query := sq.Select(
		"id",
		"COALESCE(message_id, '')",
		"order_id",
		"order_number",
		"user_id",
		"event",
		"order_status",
		"total",
		"created_at",
	).
		From(table).
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id")

	var entries []auditlog.AuditLogOrder
	err := r.q.Query(ctx, query, func(rows storage.Rows) error {
		entries = entries[:0]
		for rows.Next() {
			var e auditlog.AuditLogOrder
			if err := rows.Scan(
				&e.ID,
				&e.MessageID,
				&e.OrderID,
				&e.OrderNumber,
				&e.UserID,
				&e.Event,
				&e.OrderStatus,
				&e.Total,
				&e.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to scan audit log: %w", err)
			}
			entries = append(entries, e)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	return entries, nil
}
