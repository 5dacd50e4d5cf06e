package iorderrepo

import (
	"context"

	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
)

// IOrderRepository is an interface for order repository.
type IOrderRepository interface {
	// Insert stores a pending order and returns its id.
	Insert(ctx context.Context, draft order.Draft) (int64, error)
	GetByID(ctx context.Context, id int64) (order.Order, error)
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
	// UpdateStatus moves the order from one status to another and reports
	// whether the order was still in the expected status.
	UpdateStatus(ctx context.Context, id int64, from, to order.Status) (bool, error)
}
