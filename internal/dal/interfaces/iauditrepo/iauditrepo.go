package iauditrepo

import (
	"context"

	"github.com/corray333/backend-labs/storefront/internal/service/models/auditlog"
)

// IAuditRepository is interface for audit log repository.
type IAuditRepository interface {
	BatchInsert(ctx context.Context, entries []auditlog.AuditLogOrder) error
	ListByOrder(ctx context.Context, orderID int64) ([]auditlog.AuditLogOrder, error)
}
