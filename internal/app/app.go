package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/corray333/backend-labs/storefront/internal/dal/executor"
	"github.com/corray333/backend-labs/storefront/internal/dal/kafka"
	"github.com/corray333/backend-labs/storefront/internal/dal/pool"
	"github.com/corray333/backend-labs/storefront/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/outboxrepo"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/productrepo"
	"github.com/corray333/backend-labs/storefront/internal/otel"
	"github.com/corray333/backend-labs/storefront/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/storefront/internal/service/services/stocksvc"
	grpctransport "github.com/corray333/backend-labs/storefront/internal/transport/grpc"
	httptransport "github.com/corray333/backend-labs/storefront/internal/transport/http"
	outboxworker "github.com/corray333/backend-labs/storefront/internal/worker/outbox"
	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/ratelimit"
)

// App represents the storefront application.
type App struct {
	pool           *pool.Manager
	httpTransport  *httptransport.HTTPTransport
	grpcTransport  *grpctransport.GRPCTransport
	outboxWorker   *outboxworker.Worker
	broker         io.Closer
	redisClient    *redis.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application from the global configuration.
func MustNewApp() *App {
	v := viper.GetViper()

	secret := v.GetString("auth.jwt_secret")
	if secret == "" {
		panic("auth.jwt_secret is required")
	}

	otelController := otel.MustInitOtel(otelConfig(v, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager := mustNewPool(ctx, v)
	exec := executor.New(manager, executorConfig(v))

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithStorage(manager, exec),
		ordersvc.WithEvents(eventsConfig(v)),
	)
	stockSvc := stocksvc.MustNewStockService(
		stocksvc.WithProductRepository(productrepo.New(exec)),
	)

	var worker *outboxworker.Worker
	publisher, broker := mustNewPublisher(v)
	if publisher != nil {
		worker = outboxworker.NewWorker(
			outboxrepo.NewOutboxRepository(exec),
			outboxworker.NewBreakerPublisher(v.GetString("events.broker"), publisher, breakerConfig(v)),
			outboxConfig(v),
		)
	}

	var (
		redisClient *redis.Client
		limiter     ratelimit.Counter
	)
	if addr := v.GetString("redis.addr"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		})
		limiter = ratelimit.NewRedisCounter(redisClient, "storefront:ratelimit")
	}

	httpTransport := httptransport.NewHTTPTransport(httptransport.Deps{
		Orders:    orderSvc,
		Stock:     stockSvc,
		Health:    manager,
		JWTSecret: []byte(secret),
		Limiter:   limiter,
		RateLimit: rateLimitConfig(v),
	})
	httpTransport.RegisterRoutes()

	return &App{
		pool:           manager,
		httpTransport:  httpTransport,
		grpcTransport:  grpctransport.NewGRPCTransport(manager),
		outboxWorker:   worker,
		broker:         broker,
		redisClient:    redisClient,
		otelController: otelController,
	}
}

// mustNewPublisher connects to the configured broker. Both results are nil
// when events are disabled.
func mustNewPublisher(v *viper.Viper) (outboxworker.Publisher, io.Closer) {
	switch broker := v.GetString("events.broker"); broker {
	case brokerRabbitMQ:
		client := rabbitmq.MustNewClient(rabbitmqConfig(v))
		if err := client.DeclareExchange(v.GetString("events.topic")); err != nil {
			panic(err)
		}

		return client, client
	case brokerKafka:
		producer := kafka.NewProducer(kafkaConfig(v))

		return producer, producer
	case brokerNone:
		slog.Warn("Order events are disabled")

		return nil, nil
	default:
		panic(fmt.Sprintf("unknown events.broker %q", broker))
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	// Create a channel to receive OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := a.httpTransport.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		if err := a.grpcTransport.Run(ctx); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	if a.outboxWorker != nil {
		go a.outboxWorker.Start(ctx)
	}

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown stops intake first, then background work, then
// releases connections.
func (a *App) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpTransport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if err := a.grpcTransport.Shutdown(ctx); err != nil {
		slog.Error("gRPC server shutdown error", "error", err)
	} else {
		slog.Info("gRPC server stopped gracefully")
	}

	if a.outboxWorker != nil {
		a.outboxWorker.Stop()
		slog.Info("Outbox worker stopped gracefully")
	}

	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			slog.Error("Broker connection close error", "error", err)
		} else {
			slog.Info("Broker connection closed gracefully")
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			slog.Error("Redis connection close error", "error", err)
		}
	}

	a.pool.Close()
	slog.Info("Database pool closed")

	if err := a.otelController.Shutdown(ctx); err != nil {
		slog.Error("Otel trace provider connection close error", "error", err)
	} else {
		slog.Info("Otel trace provider connection closed gracefully")
	}

	select {
	case <-ctx.Done():
		slog.Warn("Shutdown timeout exceeded")
	default:
		slog.Info("Application shutdown complete")
	}
}
