package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/storefront/internal/service/models/outbox"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)

	return nil
}

func (w *recordingWriter) Close() error {
	return nil
}

func TestPublish(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{w: w}

	err := p.Publish(context.Background(), outbox.OutboxMessage{
		ID:          9,
		Topic:       "orders",
		RoutingKey:  "order.created",
		Payload:     []byte(`{"orderId":1}`),
		ContentType: outbox.ContentTypeJSON,
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "orders", m.Topic)
	assert.Equal(t, []byte("order.created"), m.Key)
	assert.JSONEq(t, `{"orderId":1}`, string(m.Value))
	assert.Contains(t, m.Headers, kafka.Header{Key: "outbox-id", Value: []byte("9")})
}

func TestPublish_Error(t *testing.T) {
	p := &Producer{w: &recordingWriter{err: errors.New("leader not available")}}

	err := p.Publish(context.Background(), outbox.OutboxMessage{Topic: "orders"})
	assert.ErrorContains(t, err, "orders")
	assert.ErrorContains(t, err, "leader not available")
}
