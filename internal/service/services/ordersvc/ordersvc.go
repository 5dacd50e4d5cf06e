package ordersvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/corray333/backend-labs/storefront/internal/dal/executor"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iproductrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iuserrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/orderrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/productrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/userrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/uow"
	"github.com/corray333/backend-labs/storefront/internal/metrics"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/event"
	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
	"github.com/corray333/backend-labs/storefront/internal/service/models/outbox"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// OrderService is a service for placing and reading orders.
type OrderService struct {
	newUOW   func() unitOfWork
	users    iuserrepo.IUserRepository
	orders   iorderrepo.IOrderRepository
	products iproductrepo.IProductRepository
	events   EventsConfig
	now      func() time.Time
	tracer   trace.Tracer
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	ProductRepository() iproductrepo.IProductRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

// EventsConfig controls the outbox rows written next to order changes.
// An empty Topic disables events.
type EventsConfig struct {
	Topic      string
	MaxRetries int
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer("ordersvc"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.newUOW == nil || s.users == nil || s.orders == nil || s.products == nil {
		panic("ordersvc: storage is not configured")
	}

	return s
}

// WithStorage wires transactional writes to the pool and reads to the retrying executor.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithStorage(pool uow.Pool, exec *executor.Executor) option {
	return func(s *OrderService) {
		s.newUOW = func() unitOfWork { return uow.NewUnitOfWork(pool) }
		s.users = userrepo.New(exec)
		s.orders = orderrepo.New(exec)
		s.products = productrepo.New(exec)
	}
}

// WithEvents enables the outbox.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithEvents(cfg EventsConfig) option {
	return func(s *OrderService) {
		s.events = cfg
	}
}

// withRepositories replaces storage with explicit dependencies.
func withRepositories(
	newUOW func() unitOfWork,
	users iuserrepo.IUserRepository,
	orders iorderrepo.IOrderRepository,
	products iproductrepo.IProductRepository,
) option {
	return func(s *OrderService) {
		s.newUOW = newUOW
		s.users = users
		s.orders = orders
		s.products = products
	}
}

// CreateOrder validates the request, then inserts the order and takes every
// line's quantity off stock in one transaction. On success the committed
// order is read back with its structured fields decoded.
func (s *OrderService) CreateOrder(ctx context.Context, req *order.CreateRequest) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	created, err := s.createOrder(ctx, req)
	metrics.OrdersTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errs.KindOf(err).String())

		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("order.id", created.ID),
		attribute.String("order.number", created.OrderNumber),
	)

	return created, nil
}

func (s *OrderService) createOrder(ctx context.Context, req *order.CreateRequest) (*order.Order, error) {
	if req == nil {
		return nil, errs.Invalid("request body is required")
	}

	draft, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if draft.OrderNumber == "" {
		draft.OrderNumber = order.NewOrderNumber(s.now())
	}

	exists, err := s.users.Exists(ctx, draft.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &errs.NotFoundError{Entity: "user", ID: draft.UserID}
	}

	id, err := s.placeOrder(ctx, draft)
	if err != nil {
		return nil, err
	}

	created, err := s.orders.GetByID(ctx, id)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)

		return nil, &errs.CommittedError{OrderID: id, Op: "create", Err: err}
	}

	slog.Info("Order created",
		"order_id", created.ID,
		"order_number", created.OrderNumber,
		"user_id", created.UserID,
		"items", len(created.Items),
		"total", created.Total.StringFixed(2),
	)

	return &created, nil
}

// placeOrder runs the write transaction and returns the new order id.
func (s *OrderService) placeOrder(ctx context.Context, draft *order.Draft) (int64, error) {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return 0, err
	}
	defer rollback(ctx, work)

	id, err := work.OrderRepository().Insert(ctx, *draft)
	if err != nil {
		return 0, &errs.TransactionError{Op: "insert order", Err: err}
	}

	for i, item := range draft.Items {
		ok, err := work.ProductRepository().DecrementStock(ctx, item.ProductID, item.Size, item.Quantity)
		if err != nil {
			return 0, &errs.TransactionError{Op: fmt.Sprintf("decrement stock for items[%d]", i), Err: err}
		}
		if ok {
			continue
		}

		// Release the transaction's connection before reading the current level.
		rollback(ctx, work)

		return 0, s.insufficientStock(ctx, item)
	}

	if err := s.enqueue(ctx, work, event.Created(id, *draft, s.now())); err != nil {
		return 0, err
	}

	if err := work.Commit(ctx); err != nil {
		return 0, err
	}

	return id, nil
}

// insufficientStock builds the error for a failed decrement, filling the
// available quantity when it can be read.
func (s *OrderService) insufficientStock(ctx context.Context, item order.LineItem) error {
	stockErr := &errs.InsufficientStockError{
		ProductID: item.ProductID,
		Size:      item.Size.String(),
		Requested: item.Quantity,
	}

	available, found, err := s.products.GetStock(ctx, item.ProductID, item.Size)
	switch {
	case err != nil:
		slog.Warn("Failed to read stock level", "product_id", item.ProductID, "size", item.Size, "error", err)
	case found:
		stockErr.Available = &available
	}

	return stockErr
}

// enqueue writes an event into the outbox inside the running transaction.
func (s *OrderService) enqueue(ctx context.Context, work unitOfWork, e event.OrderEvent) error {
	if s.events.Topic == "" {
		return nil
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return &errs.TransactionError{Op: "encode event", Err: err}
	}

	err = work.OutboxRepository().Insert(ctx, outbox.OutboxMessage{
		Topic:       s.events.Topic,
		RoutingKey:  e.Event,
		Payload:     payload,
		ContentType: outbox.ContentTypeJSON,
		MaxRetries:  s.events.MaxRetries,
	})
	if err != nil {
		return &errs.TransactionError{Op: "enqueue event", Err: err}
	}

	return nil
}

// GetOrder returns one order.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	if id <= 0 {
		return nil, errs.Invalid("order id must be positive")
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)

		return nil, err
	}

	return &o, nil
}

// ListOrdersForUser returns the user's orders, newest first. A user without
// orders gets an empty slice.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID int64) ([]order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrdersForUser")
	defer span.End()

	if userID <= 0 {
		return nil, errs.Invalid("user id must be positive")
	}

	orders, err := s.orders.Query(ctx, &order.QueryOrdersModel{UserIds: []int64{userID}})
	if err != nil {
		span.RecordError(err)

		return nil, err
	}
	if orders == nil {
		orders = []order.Order{}
	}

	return orders, nil
}

// ListOrders returns every order matching the filter, newest first.
func (s *OrderService) ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		return nil, errs.Invalid("offset must not be negative")
	}

	orders, err := s.orders.Query(ctx, &filter)
	if err != nil {
		span.RecordError(err)

		return nil, err
	}
	if orders == nil {
		orders = []order.Order{}
	}

	return orders, nil
}

// UpdateOrderStatus moves an order along its lifecycle. Cancelling returns
// every line's quantity to stock in the same transaction.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, to order.Status) (*order.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.CanTransition(current.Status, to) {
		return nil, &errs.ConflictError{
			Reason: fmt.Sprintf("order %d cannot move from %s to %s", id, current.Status, to),
		}
	}

	if err := s.applyStatus(ctx, current, to); err != nil {
		span.RecordError(err)

		return nil, err
	}

	updated, err := s.orders.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)

		return nil, &errs.CommittedError{OrderID: id, Op: "status", Err: err}
	}

	slog.Info("Order status changed", "order_id", id, "from", current.Status, "to", to)

	return &updated, nil
}

func (s *OrderService) applyStatus(ctx context.Context, current order.Order, to order.Status) error {
	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return err
	}
	defer rollback(ctx, work)

	ok, err := work.OrderRepository().UpdateStatus(ctx, current.ID, current.Status, to)
	if err != nil {
		return &errs.TransactionError{Op: "update status", Err: err}
	}
	if !ok {
		return &errs.ConflictError{Reason: fmt.Sprintf("order %d was modified concurrently", current.ID)}
	}

	if to == order.StatusCancelled {
		for i, item := range current.Items {
			if err := work.ProductRepository().IncrementStock(ctx, item.ProductID, item.Size, item.Quantity); err != nil {
				return &errs.TransactionError{Op: fmt.Sprintf("restore stock for items[%d]", i), Err: err}
			}
		}
	}

	if err := s.enqueue(ctx, work, event.StatusChanged(current, to, s.now())); err != nil {
		return err
	}

	return work.Commit(ctx)
}

// rollback aborts the unit of work even if ctx is already canceled.
func rollback(ctx context.Context, work unitOfWork) {
	if err := work.Rollback(context.WithoutCancel(ctx)); err != nil {
		slog.Error("Failed to roll back transaction", "error", err)
	}
}

func outcome(err error) string {
	if err == nil {
		return "created"
	}

	var notFound *errs.NotFoundError
	if errors.As(err, &notFound) && notFound.Entity == "user" {
		return "user_not_found"
	}

	return errs.KindOf(err).String()
}
