package app

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corray333/backend-labs/storefront/internal/config"
	"github.com/corray333/backend-labs/storefront/internal/dal/storage"
)

func newViper(t *testing.T, overrides map[string]any) *viper.Viper {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}

	return v
}

func TestPoolAndExecutorConfig(t *testing.T) {
	v := newViper(t, map[string]any{
		"storage.pool.max_conns":        4,
		"storage.pool.queue_depth":      -1,
		"storage.executor.max_attempts": 5,
	})

	p := poolConfig(v)
	assert.Equal(t, 4, p.MaxConns)
	assert.Equal(t, -1, p.QueueDepth)
	assert.Equal(t, 5*time.Second, p.AcquireTimeout)

	e := executorConfig(v)
	assert.Equal(t, 5, e.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, e.Backoff)
	assert.Equal(t, 5*time.Second, e.QueryTimeout)
	assert.Equal(t, 5*time.Second, e.ResetTimeout)

	assert.Equal(t, 4, postgresConfig(v).MaxConns)
	assert.Equal(t, 4, mysqlConfig(v).MaxConns)
}

func TestEventsConfig(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		cfg := eventsConfig(newViper(t, map[string]any{"events.broker": brokerKafka}))

		assert.Equal(t, "orders", cfg.Topic)
		assert.Equal(t, 5, cfg.MaxRetries)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := eventsConfig(newViper(t, map[string]any{"events.broker": brokerNone}))

		assert.Empty(t, cfg.Topic)
	})
}

func TestConsumerConfigUsesEventsTopic(t *testing.T) {
	cfg := consumerConfig(newViper(t, map[string]any{"events.topic": "shop-events"}))

	assert.Equal(t, "shop-events", cfg.Exchange)
	assert.Equal(t, "order-audit", cfg.Queue)
	assert.Equal(t, "order.#", cfg.BindingKey)
	assert.Equal(t, 50, cfg.Concurrency)
}

func TestBreakerAndRateLimitConfig(t *testing.T) {
	v := newViper(t, nil)

	assert.Equal(t, uint32(5), breakerConfig(v).ConsecutiveFailures)
	assert.Equal(t, 30*time.Second, breakerConfig(v).OpenTimeout)
	assert.Equal(t, int64(100), rateLimitConfig(v).Requests)
	assert.Equal(t, time.Minute, rateLimitConfig(v).Window)
}

func TestOtelConfigServiceName(t *testing.T) {
	v := newViper(t, nil)

	assert.Equal(t, "storefront", otelConfig(v, "").ServiceName)
	assert.Equal(t, "storefront-audit", otelConfig(v, "storefront-audit").ServiceName)
}

func TestNewStorageBackend(t *testing.T) {
	pg, err := newStorageBackend(newViper(t, nil))
	require.NoError(t, err)
	assert.Equal(t, storage.Postgres, pg.dialect)
	assert.NotNil(t, pg.open)
	assert.NotNil(t, pg.migrate)

	my, err := newStorageBackend(newViper(t, map[string]any{"storage.driver": "mysql"}))
	require.NoError(t, err)
	assert.Equal(t, storage.MySQL, my.dialect)

	_, err = newStorageBackend(newViper(t, map[string]any{"storage.driver": "sqlite"}))
	require.ErrorIs(t, err, storage.ErrUnknownDialect)
}
