// Package queue publishes order lifecycle events to RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

const publishTimeout = 5 * time.Second

// amqpChannel is the subset of *amqp.Channel the publisher needs
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher sends order events to a durable queue on the default
// exchange. It holds one connection and one channel for its lifetime.
type RabbitPublisher struct {
	mu     sync.Mutex
	conn   io.Closer
	ch     amqpChannel
	queue  string
	logger *logrus.Logger
}

// NewRabbitPublisher dials the broker and declares the order events queue
func NewRabbitPublisher(url, queue string, logger *logrus.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	p, err := newRabbitPublisher(conn, ch, queue, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func newRabbitPublisher(conn io.Closer, ch amqpChannel, queue string, logger *logrus.Logger) (*RabbitPublisher, error) {
	// Durable so events survive broker restarts
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &RabbitPublisher{
		conn:   conn,
		ch:     ch,
		queue:  queue,
		logger: logger,
	}, nil
}

// Publish sends one event as a persistent JSON message
func (p *RabbitPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID.String(),
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt.UTC(),
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Default exchange, routing key = queue name
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
		"queue":      p.queue,
	}).Debug("Order event published")

	return nil
}

// Close releases the channel and the connection
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	chErr := p.ch.Close()
	var connErr error
	if p.conn != nil {
		connErr = p.conn.Close()
	}
	if chErr != nil {
		return fmt.Errorf("failed to close rabbitmq channel: %w", chErr)
	}
	if connErr != nil {
		return fmt.Errorf("failed to close rabbitmq connection: %w", connErr)
	}
	return nil
}
