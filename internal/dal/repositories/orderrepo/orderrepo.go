package orderrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
)

const table = "orders"

var columns = []string{
	"id",
	"user_id",
	"order_number",
	"items",
	"subtotal",
	"tax",
	"shipping",
	"total",
	"status",
	"shipping_address",
	"billing_address",
	"payment_method",
	"notes",
	"created_at",
	"updated_at",
}

// OrderDal represents order data access layer model.
type OrderDal struct {
	ID              int64
	UserID          int64
	OrderNumber     string
	Items           []byte
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Total           decimal.Decimal
	Status          string
	ShippingAddress []byte
	BillingAddress  []byte
	PaymentMethod   []byte
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (o *OrderDal) scanDest() []any {
	return []any{
		&o.ID,
		&o.UserID,
		&o.OrderNumber,
		&o.Items,
		&o.Subtotal,
		&o.Tax,
		&o.Shipping,
		&o.Total,
		&o.Status,
		&o.ShippingAddress,
		&o.BillingAddress,
		&o.PaymentMethod,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
}

// ToModel converts OrderDal to service layer Order model, decoding the
// structured columns.
func (o *OrderDal) ToModel() (order.Order, error) {
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return order.Order{}, fmt.Errorf("order %d: %w", o.ID, err)
	}

	res := order.Order{
		ID:          o.ID,
		UserID:      o.UserID,
		OrderNumber: o.OrderNumber,
		Subtotal:    o.Subtotal,
		Tax:         o.Tax,
		Shipping:    o.Shipping,
		Total:       o.Total,
		Status:      status,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if o.Notes != nil {
		res.Notes = *o.Notes
	}

	if err := res.Items.Scan(o.Items); err != nil {
		return order.Order{}, fmt.Errorf("order %d items: %w", o.ID, err)
	}
	if err := res.ShippingAddress.Scan(o.ShippingAddress); err != nil {
		return order.Order{}, fmt.Errorf("order %d shipping address: %w", o.ID, err)
	}
	if err := res.BillingAddress.Scan(o.BillingAddress); err != nil {
		return order.Order{}, fmt.Errorf("order %d billing address: %w", o.ID, err)
	}
	if err := res.PaymentMethod.Scan(o.PaymentMethod); err != nil {
		return order.Order{}, fmt.Errorf("order %d payment method: %w", o.ID, err)
	}

	return res, nil
}

// Repository stores orders on any supported engine.
type Repository struct {
	q   storage.Querier
	now func() time.Time
}

// New creates an order repository over q, which may be the executor or a
// transaction-bound querier.
func New(q storage.Querier) *Repository {
	return &Repository{
		q:   q,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Insert stores a pending order and returns its generated id.
func (r *Repository) Insert(ctx context.Context, d order.Draft) (int64, error) {
	items, err := d.Items.Encode()
	if err != nil {
		return 0, err
	}
	shipping, err := d.ShippingAddress.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode shipping address: %w", err)
	}
	billing, err := d.BillingAddress.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode billing address: %w", err)
	}
	payment, err := d.PaymentMethod.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode payment method: %w", err)
	}

	var notes *string
	if d.Notes != "" {
		notes = &d.Notes
	}

	now := r.now()
	insert := sq.Insert(table).
		Columns(columns[1:]...).
		Values(
			d.UserID,
			d.OrderNumber,
			items,
			d.Subtotal,
			d.Tax,
			d.Shipping,
			d.Total,
			string(order.StatusPending),
			shipping,
			billing,
			payment,
			notes,
			now,
			now,
		)

	var id int64
	if r.q.Dialect().SupportsReturning() {
		err = r.q.Query(ctx, insert.Suffix("RETURNING id"), func(rows storage.Rows) error {
			if !rows.Next() {
				return fmt.Errorf("insert returned no id")
			}

			return rows.Scan(&id)
		})
	} else {
		var tag storage.CommandTag
		tag, err = r.q.Exec(ctx, insert)
		id = tag.LastInsertID
	}
	if err != nil {
		return 0, r.mapInsertError(err, d)
	}

	return id, nil
}

func (r *Repository) mapInsertError(err error, d order.Draft) error {
	switch {
	case storage.IsUniqueViolation(err):
		return &errs.ConflictError{Reason: fmt.Sprintf("order number %s already exists", d.OrderNumber)}
	case storage.IsForeignKeyViolation(err):
		return &errs.NotFoundError{Entity: "user", ID: d.UserID}
	default:
		return fmt.Errorf("failed to insert order: %w", err)
	}
}

// GetByID returns one order or a NotFoundError.
func (r *Repository) GetByID(ctx context.Context, id int64) (order.Order, error) {
	orders, err := r.Query(ctx, &order.QueryOrdersModel{Ids: []int64{id}, Limit: 1})
	if err != nil {
		return order.Order{}, err
	}
	if len(orders) == 0 {
		return order.Order{}, &errs.NotFoundError{Entity: "order", ID: id}
	}

	return orders[0], nil
}

// Query returns orders matching the filter, newest first.
func (r *Repository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	query := sq.Select(columns...).
		From(table).
		OrderBy("created_at DESC", "id DESC")

	if filter != nil {
		if len(filter.Ids) > 0 {
			query = query.Where(sq.Eq{"id": filter.Ids})
		}
		if len(filter.UserIds) > 0 {
			query = query.Where(sq.Eq{"user_id": filter.UserIds})
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			query = query.Where(sq.Eq{"status": statuses})
		}
		if filter.Limit > 0 {
			query = query.Limit(uint64(filter.Limit))
		}
		if filter.Offset > 0 {
			query = query.Offset(uint64(filter.Offset))
		}
	}

	var orders []order.Order
	err := r.q.Query(ctx, query, func(rows storage.Rows) error {
		orders = orders[:0]
		for rows.Next() {
			var dal OrderDal
			if err := rows.Scan(dal.scanDest()...); err != nil {
				return fmt.Errorf("failed to scan order: %w", err)
			}
			o, err := dal.ToModel()
			if err != nil {
				return err
			}
			orders = append(orders, o)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	return orders, nil
}

// UpdateStatus moves an order from one status to another. It reports false
// if the order no longer has status from.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to order.Status) (bool, error) {
	tag, err := r.q.Exec(ctx, sq.Update(table).
		Set("status", string(to)).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": id, "status": string(from)}),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	return tag.RowsAffected == 1, nil
}
