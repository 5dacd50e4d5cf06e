package outboxrepo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
	"github.com/corray333/backend-labs/storefront/internal/dal/storage/storagetest"
	"github.com/corray333/backend-labs/storefront/internal/service/models/outbox"
)

var fixedNow = time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

func newRepo(t *testing.T) (*OutboxRepository, sqlmock.Sqlmock) {
	t.Helper()

	q, mock := storagetest.NewMock(t, storage.Postgres)
	r := NewOutboxRepository(q)
	r.now = func() time.Time { return fixedNow }

	return r, mock
}

func TestInsert_FillsDefaults(t *testing.T) {
	r, mock := newRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox (topic,routing_key,payload,content_type")).
		WithArgs("storefront.orders", "order.created", []byte(`{}`), "application/json", 0, 5, "",
			fixedNow, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := r.Insert(context.Background(), outbox.OutboxMessage{
		Topic:      "storefront.orders",
		RoutingKey: "order.created",
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)
}

func TestGetPendingMessages(t *testing.T) {
	r, mock := newRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM outbox WHERE next_retry_at <= $1 AND retry_count < max_retries ORDER BY next_retry_at ASC, id ASC LIMIT 10",
	)).
		WithArgs(fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "topic", "routing_key", "payload", "content_type", "retry_count", "max_retries",
			"last_error", "created_at", "updated_at", "next_retry_at",
		}).AddRow(int64(3), "storefront.orders", "order.created", []byte(`{"event":"order.created"}`),
			"application/json", 1, 5, "broker down", fixedNow, fixedNow, fixedNow))

	msgs, err := r.GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(3), msgs[0].ID)
	assert.Equal(t, 1, msgs[0].RetryCount)
	assert.Equal(t, "broker down", msgs[0].LastError)
}

func TestDeleteAndUpdateRetry(t *testing.T) {
	r, mock := newRepo(t)
	next := fixedNow.Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM outbox WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE outbox SET retry_count = $1, last_error = $2, next_retry_at = $3, updated_at = $4 WHERE id = $5",
	)).
		WithArgs(2, "timeout", next, fixedNow, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Delete(context.Background(), 3))
	require.NoError(t, r.UpdateRetry(context.Background(), 4, 2, "timeout", next))
}
