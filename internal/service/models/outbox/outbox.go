package outbox

import (
	"time"
)

// ContentTypeJSON is the content type of every event the storefront emits.
const ContentTypeJSON = "application/json"

// OutboxMessage is an event stored in the same transaction as the change it
// describes and delivered to the broker by the outbox worker.
type OutboxMessage struct {
	ID int64
	// Topic is the exchange for RabbitMQ and the topic for Kafka.
	Topic       string
	RoutingKey  string
	Payload     []byte
	ContentType string
	RetryCount  int
	MaxRetries  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	NextRetryAt time.Time
}
