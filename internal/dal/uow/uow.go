package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/corray333/backend-labs/storefront/internal/dal/executor"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iproductrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/orderrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/outboxrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/productrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
)

var ErrNotStarted = errors.New("transaction not started")

// Pool hands out connections for transactions.
type Pool interface {
	Acquire(ctx context.Context) (storage.PooledConn, error)
	Dialect() storage.Dialect
}

// UnitOfWork holds one connection and one transaction from Begin until
// Commit or Rollback. Repositories obtained after Begin run inside the
// transaction.
type UnitOfWork struct {
	pool Pool
	conn storage.PooledConn
	tx   storage.Tx

	orderRepo   iorderrepo.IOrderRepository
	productRepo iproductrepo.IProductRepository
	outboxRepo  ioutboxrepo.IOutboxRepository
}

func NewUnitOfWork(pool Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

func (u *UnitOfWork) ProductRepository() iproductrepo.IProductRepository {
	return u.productRepo
}

func (u *UnitOfWork) OutboxRepository() ioutboxrepo.IOutboxRepository {
	return u.outboxRepo
}

// Begin acquires a connection and opens a transaction on it. Statements
// inside the transaction are never retried.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return errors.New("transaction already started")
	}

	conn, err := u.pool.Acquire(ctx)
	if err != nil {
		return beginError(err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()

		return beginError(err)
	}

	u.conn = conn
	u.tx = tx

	q := storage.Bind(tx, u.pool.Dialect())
	u.orderRepo = orderrepo.New(q)
	u.productRepo = productrepo.New(q)
	u.outboxRepo = outboxrepo.NewOutboxRepository(q)

	return nil
}

// Commit commits the transaction and releases the connection.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return ErrNotStarted
	}
	defer u.finish()

	if err := u.tx.Commit(ctx); err != nil {
		return &errs.TransactionError{Op: "commit", Err: err}
	}

	return nil
}

// Rollback aborts the transaction and releases the connection. It is a no-op
// once the unit of work has finished, so it is safe to defer.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	defer u.finish()

	if err := u.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	return nil
}

func (u *UnitOfWork) finish() {
	u.conn.Release()
	u.conn = nil
	u.tx = nil
}

// beginError keeps connection-class failures recognisable as transient.
func beginError(err error) error {
	class, _ := executor.Classify(err)
	if class.Retryable() || class == executor.ClassPoolExhausted {
		return &errs.TransientError{
			Class:      string(class),
			Suggestion: class.Suggestion(),
			Attempts:   1,
			Err:        err,
		}
	}

	return &errs.TransactionError{Op: "begin", Err: err}
}
