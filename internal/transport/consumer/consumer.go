package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/corray333/backend-labs/storefront/internal/dal/rabbitmq"
	"github.com/corray333/backend-labs/storefront/internal/service/models/event"
)

// service represents the service layer interface.
type service interface {
	ProcessEvent(ctx context.Context, e event.OrderEvent) error
}

// Config names the topology the consumer reads from.
type Config struct {
	Exchange    string
	Queue       string
	BindingKey  string
	ConsumerTag string
	// Concurrency bounds messages processed at once.
	Concurrency int
}

// Consumer represents the RabbitMQ consumer transport.
type Consumer struct {
	client  *rabbitmq.Client
	service service
	cfg     Config
	queue   amqp.Queue
	stop    chan struct{}
	done    chan struct{}
}

// NewConsumer declares the exchange, queue and binding and creates a Consumer.
func NewConsumer(client *rabbitmq.Client, service service, cfg Config) (*Consumer, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("consumer queue is not set")
	}
	if cfg.BindingKey == "" {
		cfg.BindingKey = "order.#"
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "audit-consumer"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 50
	}

	if err := client.DeclareExchange(cfg.Exchange); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	queue, err := client.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:    cfg.Queue,
		Durable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	if err := client.BindQueue(queue.Name, cfg.BindingKey, cfg.Exchange); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}

	return &Consumer{
		client:  client,
		service: service,
		cfg:     cfg,
		queue:   queue,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Run starts consuming messages from RabbitMQ.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.client.Consume(rabbitmq.ConsumeConfig{
		Queue:    c.queue.Name,
		Consumer: c.cfg.ConsumerTag,
	})
	if err != nil {
		return err
	}

	slog.Info("Consumer started", "queue", c.queue.Name, "consumer_tag", c.cfg.ConsumerTag)

	return c.serve(ctx, msgs)
}

func (c *Consumer) serve(ctx context.Context, msgs <-chan amqp.Delivery) error {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(c.cfg.Concurrency)

	go func() {
		defer close(c.done)
		for {
			select {
			case <-ctx.Done():
				slog.Info("Stopping consumer", "reason", ctx.Err())

				return
			case <-c.stop:
				slog.Info("Stopping consumer")

				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Info("Message channel closed")

					return
				}

				g.Go(func() error {
					c.processMessage(gctx, msg)

					return nil
				})
			}
		}
	}()

	<-c.done

	return g.Wait()
}

// processMessage handles one delivery. Malformed bodies are dropped, storage
// failures are requeued.
func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery) {
	ctx, span := otel.Tracer("consumer").Start(ctx, "Consumer.processMessage")
	defer span.End()

	e, err := event.Decode(msg.Body)
	if err != nil {
		span.RecordError(err)
		slog.Error("Rejecting malformed message", "delivery_tag", msg.DeliveryTag, "error", err)
		if err := msg.Reject(false); err != nil {
			slog.Error("Failed to reject message", "error", err)
		}

		return
	}
	if e.ID == "" {
		e.ID = msg.MessageId
	}
	span.SetAttributes(attribute.Int64("order.id", e.OrderID), attribute.String("order.event", e.Event))

	if err := c.service.ProcessEvent(ctx, e); err != nil {
		span.RecordError(err)
		slog.Error("Failed to process event, requeueing", "order_id", e.OrderID, "error", err)
		if err := msg.Nack(false, true); err != nil {
			slog.Error("Failed to nack message", "error", err)
		}

		return
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("Failed to ack message", "error", err)

		return
	}

	slog.Debug("Message processed successfully", "order_id", e.OrderID, "event", e.Event)
}

// Shutdown gracefully shuts down the consumer.
func (c *Consumer) Shutdown() error {
	slog.Info("Shutting down consumer")
	close(c.stop)

	select {
	case <-c.done:
		slog.Info("Consumer stopped successfully")
	case <-time.After(10 * time.Second):
		slog.Warn("Consumer shutdown timeout")
	}

	return nil
}
