package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderEventType names a lifecycle event published after commit
type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "order.created"
	OrderEventPaid      OrderEventType = "order.paid"
	OrderEventCancelled OrderEventType = "order.cancelled"
	OrderEventExpired   OrderEventType = "order.expired"
	OrderEventCompleted OrderEventType = "order.completed"
)

// OrderEvent is the message body published to the order events queue
type OrderEvent struct {
	EventID     uuid.UUID      `json:"event_id"`
	Type        OrderEventType `json:"type"`
	OrderID     uuid.UUID      `json:"order_id"`
	OwnerID     uuid.UUID      `json:"owner_id"`
	TrainNumber string         `json:"train_number"`
	ServiceDate string         `json:"service_date"`
	Status      OrderStatus    `json:"status"`
	Seats       map[string]int `json:"seats"`
	TotalPrice  float64        `json:"total_price"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// NewOrderEvent snapshots an order for publishing
func NewOrderEvent(eventType OrderEventType, order *Order, at time.Time) OrderEvent {
	return OrderEvent{
		EventID:     uuid.New(),
		Type:        eventType,
		OrderID:     order.ID,
		OwnerID:     order.OwnerID,
		TrainNumber: order.TrainNumber,
		ServiceDate: order.ServiceDate,
		Status:      order.Status,
		Seats:       order.SeatsByClass(),
		TotalPrice:  order.TotalPrice,
		OccurredAt:  at,
	}
}
