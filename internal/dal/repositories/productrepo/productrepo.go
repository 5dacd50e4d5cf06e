package productrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/product"
)

const table = "products"

// Repository manages per-size product stock.
type Repository struct {
	q   storage.Querier
	now func() time.Time
}

func New(q storage.Querier) *Repository {
	return &Repository{
		q:   q,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DecrementStock subtracts quantity in one statement guarded by
// "stock >= quantity", so concurrent buyers can never drive stock negative.
// Unknown sizes report false without touching the database.
func (r *Repository) DecrementStock(ctx context.Context, productID int64, size product.Size, quantity int) (bool, error) {
	col, ok := size.StockColumn()
	if !ok {
		return false, nil
	}
	if quantity <= 0 {
		return false, errs.Invalid("quantity must be positive, got %d", quantity)
	}

	tag, err := r.q.Exec(ctx, sq.Update(table).
		Set(col, sq.Expr(col+" - ?", quantity)).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": productID}).
		Where(sq.GtOrEq{col: quantity}),
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	return tag.RowsAffected == 1, nil
}

// IncrementStock returns quantity units to the product, for cancellations.
func (r *Repository) IncrementStock(ctx context.Context, productID int64, size product.Size, quantity int) error {
	col, ok := size.StockColumn()
	if !ok {
		return errs.Invalid("unknown size %q", size)
	}
	if quantity <= 0 {
		return errs.Invalid("quantity must be positive, got %d", quantity)
	}

	tag, err := r.q.Exec(ctx, sq.Update(table).
		Set(col, sq.Expr(col+" + ?", quantity)).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": productID}),
	)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	if tag.RowsAffected == 0 {
		return &errs.NotFoundError{Entity: "product", ID: productID}
	}

	return nil
}

// GetStock reads the current level of one size.
func (r *Repository) GetStock(ctx context.Context, productID int64, size product.Size) (int, bool, error) {
	col, ok := size.StockColumn()
	if !ok {
		return 0, false, nil
	}

	var (
		stock int
		found bool
	)
	err := r.q.Query(ctx, sq.Select(col).From(table).Where(sq.Eq{"id": productID}), func(rows storage.Rows) error {
		found = false
		if rows.Next() {
			found = true

			return rows.Scan(&stock)
		}

		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to read stock: %w", err)
	}

	return stock, found, nil
}

// GetByIDs returns the products with the given ids, in id order.
func (r *Repository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	if len(ids) == 0 {
		return []product.Product{}, nil
	}

	query := sq.Select(
		"id",
		"name",
		"price",
		"size_s_stock",
		"size_m_stock",
		"size_l_stock",
		"created_at",
		"updated_at",
	).
		From(table).
		Where(sq.Eq{"id": ids}).
		OrderBy("id")

	var products []product.Product
	err := r.q.Query(ctx, query, func(rows storage.Rows) error {
		products = products[:0]
		for rows.Next() {
			var p product.Product
			if err := rows.Scan(
				&p.ID,
				&p.Name,
				&p.Price,
				&p.SizeSStock,
				&p.SizeMStock,
				&p.SizeLStock,
				&p.CreatedAt,
				&p.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to scan product: %w", err)
			}
			products = append(products, p)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	return products, nil
}
