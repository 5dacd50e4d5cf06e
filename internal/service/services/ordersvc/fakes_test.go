package ordersvc

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/ioutboxrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/interfaces/iproductrepo"
	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
	"github.com/corray333/backend-labs/storefront/internal/service/models/outbox"
	"github.com/corray333/backend-labs/storefront/internal/service/models/product"
	"github.com/corray333/backend-labs/storefront/internal/service/models/user"
)

type stockKey struct {
	productID int64
	size      product.Size
}

// state is one consistent view of the fake database.
type state struct {
	users  map[int64]bool
	stock  map[stockKey]int
	orders []order.Order
	outbox []outbox.OutboxMessage
	nextID int64
}

func (s *state) clone() *state {
	return &state{
		users:  maps.Clone(s.users),
		stock:  maps.Clone(s.stock),
		orders: slices.Clone(s.orders),
		outbox: slices.Clone(s.outbox),
		nextID: s.nextID,
	}
}

// fakeStore serializes transactions and applies their changes on commit.
type fakeStore struct {
	txMu sync.Mutex

	mu        sync.Mutex
	committed *state
	now       time.Time

	commitErr error
	// getErrs is consumed by successive GetByID calls; a nil entry passes.
	getErrs   []error
	begins    int
	userReads int
}

func newFakeStore(now time.Time) *fakeStore {
	return &fakeStore{
		committed: &state{
			users:  map[int64]bool{},
			stock:  map[stockKey]int{},
			nextID: 1,
		},
		now: now,
	}
}

func (f *fakeStore) addUser(id int64) {
	f.committed.users[id] = true
}

func (f *fakeStore) setStock(id int64, size product.Size, qty int) {
	f.committed.stock[stockKey{id, size}] = qty
}

func (f *fakeStore) stockOf(id int64, size product.Size) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.committed.stock[stockKey{id, size}]
}

func (f *fakeStore) snapshot() *state {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.committed.clone()
}

func (f *fakeStore) newUOW() unitOfWork {
	return &fakeUOW{store: f}
}

func (f *fakeStore) service(opts ...option) *OrderService {
	reader := &fakeRepo{store: f, locked: true}
	all := append([]option{
		withRepositories(f.newUOW, &fakeUsers{store: f}, reader, reader),
		WithEvents(EventsConfig{Topic: "orders", MaxRetries: 5}),
	}, opts...)

	s := MustNewOrderService(all...)
	s.now = func() time.Time { return f.now }

	return s
}

type fakeUOW struct {
	store *fakeStore
	tx    *state
	repo  *fakeRepo
}

func (u *fakeUOW) Begin(context.Context) error {
	u.store.txMu.Lock()

	u.store.mu.Lock()
	u.store.begins++
	u.tx = u.store.committed.clone()
	u.store.mu.Unlock()

	u.repo = &fakeRepo{store: u.store, st: u.tx}

	return nil
}

func (u *fakeUOW) Commit(context.Context) error {
	if u.tx == nil {
		return errors.New("transaction not started")
	}
	defer u.finish()

	if u.store.commitErr != nil {
		return &errs.TransactionError{Op: "commit", Err: u.store.commitErr}
	}

	u.store.mu.Lock()
	u.store.committed = u.tx
	u.store.mu.Unlock()

	return nil
}

func (u *fakeUOW) Rollback(context.Context) error {
	if u.tx == nil {
		return nil
	}
	u.finish()

	return nil
}

func (u *fakeUOW) finish() {
	u.tx = nil
	u.store.txMu.Unlock()
}

func (u *fakeUOW) OrderRepository() iorderrepo.IOrderRepository       { return u.repo }
func (u *fakeUOW) ProductRepository() iproductrepo.IProductRepository { return u.repo }
func (u *fakeUOW) OutboxRepository() ioutboxrepo.IOutboxRepository    { return &fakeOutbox{st: u.tx} }

// fakeRepo reads and writes either a transaction's private state or, when
// locked, the committed state.
type fakeRepo struct {
	store  *fakeStore
	st     *state
	locked bool
}

func (r *fakeRepo) view() (*state, func()) {
	if !r.locked {
		return r.st, func() {}
	}
	r.store.mu.Lock()

	return r.store.committed, r.store.mu.Unlock
}

func (r *fakeRepo) Insert(_ context.Context, d order.Draft) (int64, error) {
	st, done := r.view()
	defer done()

	for _, o := range st.orders {
		if o.OrderNumber == d.OrderNumber {
			return 0, &errs.ConflictError{Reason: "order number " + d.OrderNumber + " already exists"}
		}
	}

	id := st.nextID
	st.nextID++
	st.orders = append(st.orders, order.Order{
		ID:              id,
		UserID:          d.UserID,
		OrderNumber:     d.OrderNumber,
		Items:           slices.Clone(d.Items),
		Subtotal:        d.Subtotal,
		Tax:             d.Tax,
		Shipping:        d.Shipping,
		Total:           d.Total,
		Status:          order.StatusPending,
		ShippingAddress: d.ShippingAddress,
		BillingAddress:  d.BillingAddress,
		PaymentMethod:   d.PaymentMethod,
		Notes:           d.Notes,
		CreatedAt:       r.store.now.Add(time.Duration(id) * time.Second),
		UpdatedAt:       r.store.now.Add(time.Duration(id) * time.Second),
	})

	return id, nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id int64) (order.Order, error) {
	r.store.mu.Lock()
	var injected error
	if len(r.store.getErrs) > 0 {
		injected, r.store.getErrs = r.store.getErrs[0], r.store.getErrs[1:]
	}
	r.store.mu.Unlock()
	if injected != nil {
		return order.Order{}, injected
	}

	orders, err := r.Query(ctx, &order.QueryOrdersModel{Ids: []int64{id}})
	if err != nil {
		return order.Order{}, err
	}
	if len(orders) == 0 {
		return order.Order{}, &errs.NotFoundError{Entity: "order", ID: id}
	}

	return orders[0], nil
}

func (r *fakeRepo) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	st, done := r.view()
	defer done()

	var res []order.Order
	for _, o := range st.orders {
		if len(filter.Ids) > 0 && !slices.Contains(filter.Ids, o.ID) {
			continue
		}
		if len(filter.UserIds) > 0 && !slices.Contains(filter.UserIds, o.UserID) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		res = append(res, o)
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}

		return res[i].ID > res[j].ID
	})

	if filter.Offset > 0 {
		res = res[min(filter.Offset, len(res)):]
	}
	if filter.Limit > 0 && len(res) > filter.Limit {
		res = res[:filter.Limit]
	}

	return res, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id int64, from, to order.Status) (bool, error) {
	st, done := r.view()
	defer done()

	for i := range st.orders {
		if st.orders[i].ID == id && st.orders[i].Status == from {
			st.orders[i].Status = to

			return true, nil
		}
	}

	return false, nil
}

func (r *fakeRepo) DecrementStock(_ context.Context, id int64, size product.Size, qty int) (bool, error) {
	st, done := r.view()
	defer done()

	key := stockKey{id, size}
	level, ok := st.stock[key]
	if !ok || level < qty {
		return false, nil
	}
	st.stock[key] = level - qty

	return true, nil
}

func (r *fakeRepo) IncrementStock(_ context.Context, id int64, size product.Size, qty int) error {
	st, done := r.view()
	defer done()

	key := stockKey{id, size}
	if _, ok := st.stock[key]; !ok {
		return &errs.NotFoundError{Entity: "product", ID: id}
	}
	st.stock[key] += qty

	return nil
}

func (r *fakeRepo) GetStock(_ context.Context, id int64, size product.Size) (int, bool, error) {
	st, done := r.view()
	defer done()

	level, ok := st.stock[stockKey{id, size}]

	return level, ok, nil
}

func (r *fakeRepo) GetByIDs(context.Context, []int64) ([]product.Product, error) {
	return nil, errors.New("not used")
}

// fakeOutbox records messages written inside a transaction.
type fakeOutbox struct {
	st *state
}

func (o *fakeOutbox) Insert(_ context.Context, msg outbox.OutboxMessage) error {
	msg.ID = int64(len(o.st.outbox) + 1)
	o.st.outbox = append(o.st.outbox, msg)

	return nil
}

func (o *fakeOutbox) GetPendingMessages(context.Context, int) ([]outbox.OutboxMessage, error) {
	return nil, errors.New("not used")
}

func (o *fakeOutbox) Delete(context.Context, int64) error {
	return errors.New("not used")
}

func (o *fakeOutbox) UpdateRetry(context.Context, int64, int, string, time.Time) error {
	return errors.New("not used")
}

type fakeUsers struct {
	store *fakeStore
}

func (u *fakeUsers) Exists(_ context.Context, id int64) (bool, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	u.store.userReads++

	return u.store.committed.users[id], nil
}

func (u *fakeUsers) GetByID(context.Context, int64) (user.User, error) {
	return user.User{}, errors.New("not used")
}
