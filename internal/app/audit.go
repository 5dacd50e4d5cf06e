package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/corray333/backend-labs/storefront/internal/dal/executor"
	"github.com/corray333/backend-labs/storefront/internal/dal/pool"
	"github.com/corray333/backend-labs/storefront/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/storefront/internal/dal/repositories/auditrepo"
	"github.com/corray333/backend-labs/storefront/internal/otel"
	"github.com/corray333/backend-labs/storefront/internal/service/services/auditsvc"
	"github.com/corray333/backend-labs/storefront/internal/transport/consumer"
)

// AuditApp consumes order events from RabbitMQ into the audit log.
type AuditApp struct {
	auditSvc       *auditsvc.AuditService
	consumerTransp *consumer.Consumer
	rabbitMqClient *rabbitmq.Client
	pool           *pool.Manager
	otelController *otel.OtelController
}

// MustNewAuditApp creates the audit consumer application.
func MustNewAuditApp() *AuditApp {
	v := viper.GetViper()

	otelController := otel.MustInitOtel(otelConfig(v, "storefront-audit"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager := mustNewPool(ctx, v)
	exec := executor.New(manager, executorConfig(v))

	rabbitMqClient := rabbitmq.MustNewClient(rabbitmqConfig(v))

	auditSvc := auditsvc.MustNewAuditService(
		auditsvc.WithAuditRepository(auditrepo.New(exec)),
	)

	consumerTransp, err := consumer.NewConsumer(rabbitMqClient, auditSvc, consumerConfig(v))
	if err != nil {
		panic(err)
	}

	return &AuditApp{
		auditSvc:       auditSvc,
		consumerTransp: consumerTransp,
		rabbitMqClient: rabbitMqClient,
		pool:           manager,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *AuditApp) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting consumer")
		if err := a.consumerTransp.Run(ctx); err != nil {
			slog.Error("Consumer error", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown shuts down the consumer, RabbitMQ, the database pool and
// OpenTelemetry in that order.
func (a *AuditApp) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.consumerTransp.Shutdown(); err != nil {
		slog.Error("Consumer shutdown error", "error", err)
	} else {
		slog.Info("Consumer stopped gracefully")
	}

	if err := a.rabbitMqClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.pool.Close()

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
