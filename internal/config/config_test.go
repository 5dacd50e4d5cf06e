package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	assert.Equal(t, "postgres", v.GetString("storage.driver"))
	assert.True(t, v.GetBool("storage.migrate"))
	assert.Equal(t, 10, v.GetInt("storage.pool.max_conns"))
	assert.Equal(t, 5*time.Second, v.GetDuration("storage.pool.acquire_timeout"))
	assert.Equal(t, 100*time.Millisecond, v.GetDuration("storage.executor.backoff"))
	assert.Equal(t, "rabbitmq", v.GetString("events.broker"))
	assert.Equal(t, []string{"kafka:9092"}, v.GetStringSlice("kafka.brokers"))
	assert.Equal(t, "8080", v.GetString("server.http.port"))
	assert.Equal(t, time.Minute, v.GetDuration("ratelimit.window"))
	assert.False(t, v.GetBool("otel.enabled"))
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("STOREFRONT_STORAGE_DRIVER", "mysql")
	t.Setenv("STOREFRONT_STORAGE_POOL_MAX_CONNS", "3")

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	require.Equal(t, "mysql", v.GetString("storage.driver"))
	assert.Equal(t, 3, v.GetInt("storage.pool.max_conns"))
}
