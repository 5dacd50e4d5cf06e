package app

import (
	"github.com/spf13/viper"

	"github.com/corray333/backend-labs/storefront/internal/dal/executor"
	"github.com/corray333/backend-labs/storefront/internal/dal/kafka"
	"github.com/corray333/backend-labs/storefront/internal/dal/mysql"
	"github.com/corray333/backend-labs/storefront/internal/dal/pool"
	"github.com/corray333/backend-labs/storefront/internal/dal/postgres"
	"github.com/corray333/backend-labs/storefront/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/storefront/internal/otel"
	"github.com/corray333/backend-labs/storefront/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/storefront/internal/transport/consumer"
	outboxworker "github.com/corray333/backend-labs/storefront/internal/worker/outbox"
	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/ratelimit"
)

const (
	brokerRabbitMQ = "rabbitmq"
	brokerKafka    = "kafka"
	brokerNone     = "none"
)

func poolConfig(v *viper.Viper) pool.Config {
	return pool.Config{
		MaxConns:       v.GetInt("storage.pool.max_conns"),
		QueueDepth:     v.GetInt("storage.pool.queue_depth"),
		AcquireTimeout: v.GetDuration("storage.pool.acquire_timeout"),
	}
}

func executorConfig(v *viper.Viper) executor.Config {
	return executor.Config{
		MaxAttempts:  v.GetInt("storage.executor.max_attempts"),
		Backoff:      v.GetDuration("storage.executor.backoff"),
		QueryTimeout: v.GetDuration("storage.executor.query_timeout"),
		ResetTimeout: v.GetDuration("storage.executor.reset_timeout"),
	}
}

func postgresConfig(v *viper.Viper) postgres.Config {
	return postgres.Config{
		DSN:               v.GetString("postgres.dsn"),
		MaxConns:          v.GetInt("storage.pool.max_conns"),
		MaxConnLifetime:   v.GetDuration("postgres.max_conn_lifetime"),
		HealthCheckPeriod: v.GetDuration("postgres.health_check_period"),
	}
}

func mysqlConfig(v *viper.Viper) mysql.Config {
	return mysql.Config{
		DSN:             v.GetString("mysql.dsn"),
		MaxConns:        v.GetInt("storage.pool.max_conns"),
		ConnMaxLifetime: v.GetDuration("mysql.conn_max_lifetime"),
		ConnMaxIdleTime: v.GetDuration("mysql.conn_max_idle_time"),
	}
}

func rabbitmqConfig(v *viper.Viper) rabbitmq.Config {
	return rabbitmq.Config{
		Host:     v.GetString("rabbitmq.host"),
		Port:     v.GetInt("rabbitmq.port"),
		User:     v.GetString("rabbitmq.user"),
		Password: v.GetString("rabbitmq.password"),
		VHost:    v.GetString("rabbitmq.vhost"),
		Prefetch: v.GetInt("rabbitmq.prefetch"),
	}
}

func kafkaConfig(v *viper.Viper) kafka.Config {
	return kafka.Config{
		Brokers:      v.GetStringSlice("kafka.brokers"),
		WriteTimeout: v.GetDuration("kafka.write_timeout"),
	}
}

// eventsConfig returns an empty topic when no broker is configured, which
// turns event recording off in the order service.
func eventsConfig(v *viper.Viper) ordersvc.EventsConfig {
	if v.GetString("events.broker") == brokerNone {
		return ordersvc.EventsConfig{}
	}

	return ordersvc.EventsConfig{
		Topic:      v.GetString("events.topic"),
		MaxRetries: v.GetInt("events.max_retries"),
	}
}

func outboxConfig(v *viper.Viper) outboxworker.Config {
	return outboxworker.Config{
		PollInterval:  v.GetDuration("outbox.poll_interval"),
		BatchSize:     v.GetInt("outbox.batch_size"),
		RetryInterval: v.GetDuration("outbox.retry_interval"),
	}
}

func breakerConfig(v *viper.Viper) outboxworker.BreakerConfig {
	return outboxworker.BreakerConfig{
		ConsecutiveFailures: v.GetUint32("outbox.breaker.consecutive_failures"),
		OpenTimeout:         v.GetDuration("outbox.breaker.open_timeout"),
	}
}

func rateLimitConfig(v *viper.Viper) ratelimit.Config {
	return ratelimit.Config{
		Requests: v.GetInt64("ratelimit.requests"),
		Window:   v.GetDuration("ratelimit.window"),
	}
}

func consumerConfig(v *viper.Viper) consumer.Config {
	return consumer.Config{
		Exchange:    v.GetString("events.topic"),
		Queue:       v.GetString("rabbitmq.queue"),
		BindingKey:  v.GetString("rabbitmq.binding_key"),
		ConsumerTag: v.GetString("rabbitmq.consumer_tag"),
		Concurrency: v.GetInt("rabbitmq.concurrency"),
	}
}

func otelConfig(v *viper.Viper, serviceName string) otel.Config {
	if name := v.GetString("otel.service_name"); name != "" && serviceName == "" {
		serviceName = name
	}

	return otel.Config{
		Enabled:        v.GetBool("otel.enabled"),
		JaegerEndpoint: v.GetString("otel.jaeger_endpoint"),
		ServiceName:    serviceName,
	}
}
