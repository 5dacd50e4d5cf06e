package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/corray333/backend-labs/storefront/internal/service/models/outbox"
)

// Config describes the brokers the producer writes to.
type Config struct {
	Brokers      []string
	WriteTimeout time.Duration
}

// messageWriter is the part of kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes outbox messages synchronously so delivery failures reach
// the caller.
type Producer struct {
	w messageWriter
}

func NewProducer(cfg Config) *Producer {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           timeout,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes msg to the topic it names, keyed by its routing key.
func (p *Producer) Publish(ctx context.Context, msg outbox.OutboxMessage) error {
	err := p.w.WriteMessages(ctx, kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.RoutingKey),
		Value: msg.Payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(msg.ContentType)},
			{Key: "outbox-id", Value: []byte(strconv.FormatInt(msg.ID, 10))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write to kafka topic %s: %w", msg.Topic, err)
	}

	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}
