package auditsvc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iauditrepo"
	"github.com/corray333/backend-labs/storefront/internal/metrics"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/auditlog"
	"github.com/corray333/backend-labs/storefront/internal/service/models/event"
)

// AuditService records order events in the audit log.
type AuditService struct {
	auditRepo iauditrepo.IAuditRepository
	now       func() time.Time
}

// option is a function that configures the AuditService.
type option func(*AuditService)

// MustNewAuditService creates a new AuditService.
func MustNewAuditService(opts ...option) *AuditService {
	s := &AuditService{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.auditRepo == nil {
		panic("auditsvc: audit repository is not configured")
	}

	return s
}

// WithAuditRepository sets the audit repository for the AuditService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithAuditRepository(auditRepo iauditrepo.IAuditRepository) option {
	return func(s *AuditService) {
		s.auditRepo = auditRepo
	}
}

// ProcessEvent writes one audit row for an order event. An event whose id is
// already recorded is a redelivery and succeeds without a second row.
func (s *AuditService) ProcessEvent(ctx context.Context, e event.OrderEvent) error {
	ctx, span := otel.Tracer("auditsvc").Start(ctx, "AuditService.ProcessEvent")
	defer span.End()

	entry := auditlog.AuditLogOrder{
		MessageID:   e.ID,
		OrderID:     e.OrderID,
		OrderNumber: e.OrderNumber,
		UserID:      e.UserID,
		Event:       e.Event,
		OrderStatus: e.Status.String(),
		Total:       e.Total,
		CreatedAt:   e.OccurredAt,
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	if err := s.auditRepo.BatchInsert(ctx, []auditlog.AuditLogOrder{entry}); err != nil {
		var conflict *errs.ConflictError
		if errors.As(err, &conflict) {
			metrics.AuditLogsTotal.WithLabelValues("duplicate").Inc()
			slog.Info("Audit log already recorded", "order_id", e.OrderID, "event", e.Event, "message_id", e.ID)

			return nil
		}

		span.RecordError(err)
		metrics.AuditLogsTotal.WithLabelValues("error").Inc()
		slog.Error("Failed to save audit log", "order_id", e.OrderID, "event", e.Event, "error", err)

		return err
	}

	metrics.AuditLogsTotal.WithLabelValues("saved").Inc()
	slog.Info("Audit log saved", "order_id", e.OrderID, "event", e.Event, "status", e.Status)

	return nil
}

// History returns the audit trail of one order, oldest first.
func (s *AuditService) History(ctx context.Context, orderID int64) ([]auditlog.AuditLogOrder, error) {
	ctx, span := otel.Tracer("auditsvc").Start(ctx, "AuditService.History")
	defer span.End()

	return s.auditRepo.ListByOrder(ctx, orderID)
}
