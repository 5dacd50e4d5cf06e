package auditlog

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditLogOrder represents an audit log entry for an order event.
type AuditLogOrder struct {
	ID          int64           `json:"id"`
	// MessageID identifies the event the row was written for. Empty when unknown.
	MessageID   string          `json:"message_id,omitempty"`
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Event       string          `json:"event"`
	OrderStatus string          `json:"order_status"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
}
