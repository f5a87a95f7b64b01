package services

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// EventPublisher delivers order lifecycle events after their transaction commits
type EventPublisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	return nil
}

// RecordingPublisher keeps published events in memory
type RecordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *RecordingPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far
func (p *RecordingPublisher) Events() []models.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderEvent(nil), p.events...)
}

// Types returns the published event types in order
func (p *RecordingPublisher) Types() []models.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]models.OrderEventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

// publishEvent sends an event after commit. Failures are logged only: the
// state change has already happened.
func publishEvent(ctx context.Context, publisher EventPublisher, logger *logrus.Logger, event models.OrderEvent) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"order_id":   event.OrderID,
			"event_type": event.Type,
		}).Warn("Failed to publish order event")
	}
}
