package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/corray333/backend-labs/storefront/internal/metrics"
	"github.com/corray333/backend-labs/storefront/internal/service/models/outbox"
)

// BreakerConfig controls when the publisher circuit opens.
type BreakerConfig struct {
	// ConsecutiveFailures trips the circuit.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
}

// BreakerPublisher stops calling a failing broker until it has had time to recover.
type BreakerPublisher struct {
	cb   *gobreaker.CircuitBreaker
	next Publisher
}

// NewBreakerPublisher wraps next in a circuit breaker named name.
func NewBreakerPublisher(name string, next Publisher, cfg BreakerConfig) *BreakerPublisher {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(stateValue(to))

			slog.Info("Circuit breaker state changed",
				"circuit", cbName,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &BreakerPublisher{cb: cb, next: next}
}

// Publish delivers msg unless the circuit is open.
func (b *BreakerPublisher) Publish(ctx context.Context, msg outbox.OutboxMessage) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, msg)
	})

	return err
}

// State returns the current circuit state.
func (b *BreakerPublisher) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
