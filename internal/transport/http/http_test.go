package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/storefront/internal/service/errs"
	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
	"github.com/corray333/backend-labs/storefront/internal/service/models/stock"
	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/auth"
)

var secret = []byte("test-secret")

type fakeOrders struct {
	createErr   error
	lastCreate  *order.CreateRequest
	lastFilter  order.QueryOrdersModel
	lastStatus  order.Status
	orders      map[int64]order.Order
	listForUser []order.Order
}

func (f *fakeOrders) CreateOrder(_ context.Context, req *order.CreateRequest) (*order.Order, error) {
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}

	return &order.Order{ID: 1, UserID: req.UserID, Status: order.StatusPending, Total: decimal.RequireFromString("15.70")}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id int64) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, &errs.NotFoundError{Entity: "order", ID: id}
	}

	return &o, nil
}

func (f *fakeOrders) ListOrdersForUser(context.Context, int64) ([]order.Order, error) {
	if f.listForUser == nil {
		return []order.Order{}, nil
	}

	return f.listForUser, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	f.lastFilter = filter

	return []order.Order{}, nil
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, id int64, to order.Status) (*order.Order, error) {
	f.lastStatus = to
	o, ok := f.orders[id]
	if !ok {
		return nil, &errs.NotFoundError{Entity: "order", ID: id}
	}
	o.Status = to

	return &o, nil
}

type fakeStock struct {
	err error
}

func (f *fakeStock) CheckStock(context.Context, []stock.CheckRequest) error {
	return f.err
}

type fakeHealth struct {
	err error
}

func (f *fakeHealth) Ping(context.Context) error {
	return f.err
}

func newTestServer(t *testing.T, orders *fakeOrders, st *fakeStock, health *fakeHealth) *httptest.Server {
	t.Helper()

	h := NewHTTPTransport(Deps{
		Orders:    orders,
		Stock:     st,
		Health:    health,
		JWTSecret: secret,
	})
	h.RegisterRoutes()

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	return srv
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()

	tok, err := auth.NewToken(secret, userID, role, time.Hour)
	require.NoError(t, err)

	return tok
}

func do(t *testing.T, srv *httptest.Server, method, path, tok, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		_ = json.Unmarshal(raw, &decoded)
	}

	return resp, decoded
}

const checkoutBody = `{
	"items": [{"productId": 3, "size": "M", "quantity": 1, "unitPrice": "12.50"}],
	"subtotal": "12.50", "tax": "1.00", "shipping": "2.20", "total": "15.70"
}`

func TestCreateOrder(t *testing.T) {
	orders := &fakeOrders{}
	srv := newTestServer(t, orders, &fakeStock{}, &fakeHealth{})

	resp, body := do(t, srv, http.MethodPost, "/api/orders", token(t, 7, ""), checkoutBody)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "15.7", body["total"])
	require.NotNil(t, orders.lastCreate)
	assert.Equal(t, int64(7), orders.lastCreate.UserID)
	assert.True(t, orders.lastCreate.Total.Equal(decimal.RequireFromString("15.70")))
}

func TestCreateOrder_ForAnotherUser(t *testing.T) {
	srv := newTestServer(t, &fakeOrders{}, &fakeStock{}, &fakeHealth{})
	body := strings.Replace(checkoutBody, "{", `{"userId": 8,`, 1)

	resp, _ := do(t, srv, http.MethodPost, "/api/orders", token(t, 7, ""), body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/api/orders", token(t, 1, auth.RoleAdmin), body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	available := 1
	tests := []struct {
		name       string
		err        error
		status     int
		kind       string
		retryAfter string
	}{
		{
			name:   "validation",
			err:    &errs.ValidationError{Missing: []string{"total"}},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "unknown user",
			err:    &errs.NotFoundError{Entity: "user", ID: int64(7)},
			status: http.StatusNotFound,
			kind:   "not_found",
		},
		{
			name:   "insufficient stock",
			err:    &errs.InsufficientStockError{ProductID: 3, Size: "M", Requested: 2, Available: &available},
			status: http.StatusConflict,
			kind:   "insufficient_stock",
		},
		{
			name:       "transient",
			err:        &errs.TransientError{Class: "connection", Attempts: 3, Suggestion: "check that the database is running"},
			status:     http.StatusServiceUnavailable,
			kind:       "transient",
			retryAfter: "5",
		},
		{
			name:   "transaction",
			err:    &errs.TransactionError{Op: "commit", Err: errors.New("serialization failure")},
			status: http.StatusInternalServerError,
			kind:   "transaction",
		},
		{
			name:   "committed but not read back",
			err:    &errs.CommittedError{OrderID: 9, Op: "create", Err: errors.New("secret dsn timeout")},
			status: http.StatusAccepted,
			kind:   "committed",
		},
		{
			name:   "unclassified",
			err:    errors.New("secret dsn leaked"),
			status: http.StatusInternalServerError,
			kind:   "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeOrders{createErr: tt.err}, &fakeStock{}, &fakeHealth{})

			resp, body := do(t, srv, http.MethodPost, "/api/orders", token(t, 7, ""), checkoutBody)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, body["kind"])
			assert.Equal(t, tt.retryAfter, resp.Header.Get("Retry-After"))
			assert.NotContains(t, body["error"], "secret")
		})
	}
}

func TestCreateOrder_InsufficientStockDetails(t *testing.T) {
	available := 1
	srv := newTestServer(t, &fakeOrders{createErr: &errs.InsufficientStockError{
		ProductID: 3, Size: "M", Requested: 2, Available: &available,
	}}, &fakeStock{}, &fakeHealth{})

	_, body := do(t, srv, http.MethodPost, "/api/orders", token(t, 7, ""), checkoutBody)

	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, details["productId"])
	assert.EqualValues(t, 1, details["available"])
	assert.EqualValues(t, 2, details["requested"])
}

func TestCreateOrder_CommittedReportsOrderID(t *testing.T) {
	srv := newTestServer(t, &fakeOrders{createErr: &errs.CommittedError{
		OrderID: 9, Op: "create", Err: &errs.TransientError{Class: "timeout", Attempts: 3},
	}}, &fakeStock{}, &fakeHealth{})

	resp, body := do(t, srv, http.MethodPost, "/api/orders", token(t, 7, ""), checkoutBody)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "/api/orders/9", resp.Header.Get("Location"))
	assert.Empty(t, resp.Header.Get("Retry-After"))

	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 9, details["orderId"])
	assert.Equal(t, "create", details["op"])
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	srv := newTestServer(t, &fakeOrders{}, &fakeStock{}, &fakeHealth{})

	resp, _ := do(t, srv, http.MethodPost, "/api/orders", token(t, 7, ""), `{"items": [`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &fakeOrders{}, &fakeStock{}, &fakeHealth{})

	resp, _ := do(t, srv, http.MethodPost, "/api/orders", "", checkoutBody)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/admin/orders", token(t, 7, ""), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGetOrder_HidesOtherUsersOrders(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]order.Order{42: {ID: 42, UserID: 7}}}
	srv := newTestServer(t, orders, &fakeStock{}, &fakeHealth{})

	resp, _ := do(t, srv, http.MethodGet, "/api/orders/42", token(t, 7, ""), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/orders/42", token(t, 8, ""), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/orders/42", token(t, 1, auth.RoleAdmin), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/orders/abc", token(t, 7, ""), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListMyOrders_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t, &fakeOrders{}, &fakeStock{}, &fakeHealth{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/me/orders", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, 7, ""))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var orders []order.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestAdminListOrders_DecodesQuery(t *testing.T) {
	orders := &fakeOrders{}
	srv := newTestServer(t, orders, &fakeStock{}, &fakeHealth{})

	resp, _ := do(t, srv, http.MethodGet,
		"/api/admin/orders?userIds=7&userIds=8&statuses=pending&limit=10&offset=20", token(t, 1, auth.RoleAdmin), "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, order.QueryOrdersModel{
		UserIds:  []int64{7, 8},
		Statuses: []order.Status{order.StatusPending},
		Limit:    10,
		Offset:   20,
	}, orders.lastFilter)

	resp, _ = do(t, srv, http.MethodGet, "/api/admin/orders?statuses=lost", token(t, 1, auth.RoleAdmin), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateStatus(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]order.Order{42: {ID: 42, UserID: 7, Status: order.StatusPending}}}
	srv := newTestServer(t, orders, &fakeStock{}, &fakeHealth{})
	admin := token(t, 1, auth.RoleAdmin)

	resp, body := do(t, srv, http.MethodPatch, "/api/admin/orders/42/status", admin, `{"status":"processing"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, order.StatusProcessing, orders.lastStatus)

	resp, _ = do(t, srv, http.MethodPatch, "/api/admin/orders/42/status", admin, `{"status":"teleported"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckStock(t *testing.T) {
	available := 0
	st := &fakeStock{}
	srv := newTestServer(t, &fakeOrders{}, st, &fakeHealth{})
	body := `{"items":[{"productId":3,"size":"M","quantity":1}]}`

	resp, decoded := do(t, srv, http.MethodPost, "/api/stock/check", "", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["available"])

	st.err = &errs.InsufficientStockError{ProductID: 3, Size: "M", Requested: 1, Available: &available}
	resp, decoded = do(t, srv, http.MethodPost, "/api/stock/check", "", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decoded["error"], "available 0, requested 1")
}

func TestHealthz(t *testing.T) {
	health := &fakeHealth{}
	srv := newTestServer(t, &fakeOrders{}, &fakeStock{}, health)

	resp, _ := do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health.err = errors.New("pool closed")
	resp, _ = do(t, srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
