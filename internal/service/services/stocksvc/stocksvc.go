package stocksvc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iproductrepo"
	"github.com/corray333/backend-labs/storefront/internal/metrics"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/product"
	"github.com/corray333/backend-labs/storefront/internal/service/models/stock"
)

// StockService answers availability questions without reserving anything.
// A passing check does not guarantee that checkout will succeed.
type StockService struct {
	products iproductrepo.IProductRepository
	validate *validator.Validate
}

// option is a function that configures the StockService.
type option func(*StockService)

// MustNewStockService creates a new StockService.
func MustNewStockService(opts ...option) *StockService {
	s := &StockService{validate: validator.New()}
	for _, opt := range opts {
		opt(s)
	}

	if s.products == nil {
		panic("stocksvc: product repository is not configured")
	}

	return s
}

// WithProductRepository sets the product repository for the StockService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithProductRepository(repo iproductrepo.IProductRepository) option {
	return func(s *StockService) {
		s.products = repo
	}
}

// CheckStock verifies every line in order and fails on the first one that is
// invalid or cannot be satisfied.
func (s *StockService) CheckStock(ctx context.Context, items []stock.CheckRequest) error {
	ctx, span := otel.Tracer("stocksvc").Start(ctx, "StockService.CheckStock")
	defer span.End()
	span.SetAttributes(attribute.Int("stock.items", len(items)))

	err := s.checkStock(ctx, items)
	result := "available"
	if err != nil {
		span.RecordError(err)
		result = errs.KindOf(err).String()
	}
	metrics.StockChecksTotal.WithLabelValues(result).Inc()

	return err
}

func (s *StockService) checkStock(ctx context.Context, items []stock.CheckRequest) error {
	if len(items) == 0 {
		return &errs.ValidationError{Missing: []string{"items"}}
	}

	// Lines are checked in order, so lookups only cover the lines ahead of the
	// first invalid one.
	sizes := make([]product.Size, 0, len(items))
	ids := make([]int64, 0, len(items))
	var invalid error
	for i, item := range items {
		size, err := s.parseLine(i, item)
		if err != nil {
			invalid = err

			break
		}
		sizes = append(sizes, size)
		if !slices.Contains(ids, item.ProductID) {
			ids = append(ids, item.ProductID)
		}
	}
	if len(sizes) == 0 {
		return invalid
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for i, item := range items[:len(sizes)] {
		p, ok := byID[item.ProductID]
		if !ok {
			return &errs.NotFoundError{Entity: "product", ID: item.ProductID}
		}

		available, _ := p.StockFor(sizes[i])
		if available < item.Quantity {
			slog.Debug("Stock check failed",
				"product_id", item.ProductID,
				"size", sizes[i],
				"available", available,
				"requested", item.Quantity,
			)

			return &errs.InsufficientStockError{
				ProductID: item.ProductID,
				Size:      sizes[i].String(),
				Requested: item.Quantity,
				Available: &available,
			}
		}
	}

	return invalid
}

func (s *StockService) parseLine(i int, item stock.CheckRequest) (product.Size, error) {
	if err := s.validate.Struct(item); err != nil {
		return "", errs.Invalid("items[%d]: productId, size and a positive quantity are required", i)
	}
	size, err := product.ParseSize(item.Size)
	if err != nil {
		return "", errs.Invalid("items[%d].size %q is not one of S, M, L", i, item.Size)
	}

	return size, nil
}
