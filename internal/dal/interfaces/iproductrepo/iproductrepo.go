package iproductrepo

import (
	"context"

	"github.com/corray333/backend-labs/storefront/internal/service/models/product"
)

// IProductRepository is an interface for product inventory repository.
type IProductRepository interface {
	// DecrementStock takes quantity units of the size off the product in a
	// single conditional statement. It reports false when the product does not
	// exist or holds fewer than quantity units.
	DecrementStock(ctx context.Context, productID int64, size product.Size, quantity int) (bool, error)
	IncrementStock(ctx context.Context, productID int64, size product.Size, quantity int) error
	// GetStock returns the current level of one size, and false if the product does not exist.
	GetStock(ctx context.Context, productID int64, size product.Size) (int, bool, error)
	GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error)
}
