// Package event describes the order events published through the outbox.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corray333/backend-labs/storefront/internal/service/models/order"
)

const (
	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"
)

// OrderEvent is the message body for every order event. ID is fixed when the
// event is written to the outbox, so every redelivery carries the same one.
type OrderEvent struct {
	ID          string          `json:"id,omitempty"`
	Event       string          `json:"event"`
	OrderID     int64           `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	UserID      int64           `json:"userId"`
	Status      order.Status    `json:"status"`
	Total       decimal.Decimal `json:"total"`
	Items       order.Items     `json:"items,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Created builds the event emitted when an order is placed.
func Created(id int64, d order.Draft, at time.Time) OrderEvent {
	return OrderEvent{
		ID:          uuid.NewString(),
		Event:       OrderCreated,
		OrderID:     id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Status:      order.StatusPending,
		Total:       d.Total,
		Items:       d.Items,
		OccurredAt:  at,
	}
}

// StatusChanged builds the event emitted when an order moves to a new status.
func StatusChanged(o order.Order, to order.Status, at time.Time) OrderEvent {
	return OrderEvent{
		ID:          uuid.NewString(),
		Event:       OrderStatusChanged,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      to,
		Total:       o.Total,
		OccurredAt:  at,
	}
}

// Decode parses a message body.
func Decode(body []byte) (OrderEvent, error) {
	var e OrderEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return OrderEvent{}, fmt.Errorf("decode order event: %w", err)
	}
	if e.Event == "" || e.OrderID <= 0 {
		return OrderEvent{}, fmt.Errorf("decode order event: missing event name or order id")
	}

	return e, nil
}
