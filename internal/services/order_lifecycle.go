package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// LifecycleConfig holds configuration for order state transitions
type LifecycleConfig struct {
	OrderTTL time.Duration // Payment window of an unpaid order (default 30 min)
}

// DefaultLifecycleConfig returns default configuration
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{OrderTTL: 30 * time.Minute}
}

// Cancellation reasons recorded by the engine itself
const (
	ReasonOwnerCancelled = "cancelled by owner"
	ReasonPaymentExpired = "payment window expired"
)

// OrderLifecycle is the only writer of order status. Every transition runs in
// its own unit of work as a compare-and-set on the current status.
type OrderLifecycle struct {
	store     database.Store
	publisher EventPublisher
	clock     Clock
	config    LifecycleConfig
	logger    *logrus.Logger
}

// NewOrderLifecycle creates a new order lifecycle service
func NewOrderLifecycle(
	store database.Store,
	publisher EventPublisher,
	clock Clock,
	config LifecycleConfig,
	logger *logrus.Logger,
) *OrderLifecycle {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &OrderLifecycle{
		store:     store,
		publisher: publisher,
		clock:     clock,
		config:    config,
		logger:    logger,
	}
}

// OrderTTL returns the payment window
func (l *OrderLifecycle) OrderTTL() time.Duration {
	return l.config.OrderTTL
}

// transition describes one guarded status change
type transition struct {
	to     models.OrderStatus
	actor  models.Actor
	owner  *uuid.UUID // when set, orders of other owners are reported as not found
	guard  func(order *models.Order, now time.Time) error
	fill   func(update *models.StatusUpdate)
	event  models.OrderEventType
	action string
}

// ============================================================================
// OWNER / PAYMENT TRANSITIONS
// ============================================================================

// Cancel cancels an owner's order and returns its seats to inventory
func (l *OrderLifecycle) Cancel(ctx context.Context, ownerID, orderID uuid.UUID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = ReasonOwnerCancelled
	}
	return l.apply(ctx, orderID, transition{
		to:    models.OrderStatusCancelled,
		actor: models.ActorOwner,
		owner: &ownerID,
		guard: func(order *models.Order, now time.Time) error {
			if order.Status == models.OrderStatusPaid && order.HasDeparted(now) {
				return models.NewInvalidTransitionError(order.Status, models.OrderStatusCancelled, "train has departed")
			}
			return nil
		},
		fill: func(u *models.StatusUpdate) {
			u.CancellationReason = &reason
		},
		event:  models.OrderEventCancelled,
		action: "Order cancelled",
	})
}

// MarkPaid records a successful payment. paidAt defaults to now.
func (l *OrderLifecycle) MarkPaid(ctx context.Context, ownerID, orderID uuid.UUID, method string, paidAt *time.Time) (*models.Order, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, models.NewValidationError("payment_method is required")
	}
	return l.apply(ctx, orderID, transition{
		to:    models.OrderStatusPaid,
		actor: models.ActorPayment,
		owner: &ownerID,
		guard: func(order *models.Order, now time.Time) error {
			if now.After(order.PaymentDeadline(l.config.OrderTTL)) {
				return models.NewInvalidTransitionError(order.Status, models.OrderStatusPaid, "payment window elapsed")
			}
			return nil
		},
		fill: func(u *models.StatusUpdate) {
			ts := u.At
			if paidAt != nil {
				ts = *paidAt
			}
			u.PaymentMethod = &method
			u.PaymentTimestamp = &ts
		},
		event:  models.OrderEventPaid,
		action: "Order paid",
	})
}

// ============================================================================
// RECONCILER TRANSITIONS
// ============================================================================

// Expire cancels an unpaid order whose payment window has elapsed
func (l *OrderLifecycle) Expire(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	reason := ReasonPaymentExpired
	return l.apply(ctx, orderID, transition{
		to:    models.OrderStatusCancelled,
		actor: models.ActorReconciler,
		guard: func(order *models.Order, now time.Time) error {
			if order.Status != models.OrderStatusUnpaid {
				return models.NewInvalidTransitionError(order.Status, models.OrderStatusCancelled, "only unpaid orders expire")
			}
			if !now.After(order.PaymentDeadline(l.config.OrderTTL)) {
				return models.NewInvalidTransitionError(order.Status, models.OrderStatusCancelled, "payment window still open")
			}
			return nil
		},
		fill: func(u *models.StatusUpdate) {
			u.CancellationReason = &reason
		},
		event:  models.OrderEventExpired,
		action: "Order expired",
	})
}

// Complete marks a paid order completed once its train has departed
func (l *OrderLifecycle) Complete(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return l.apply(ctx, orderID, transition{
		to:    models.OrderStatusCompleted,
		actor: models.ActorReconciler,
		guard: func(order *models.Order, now time.Time) error {
			if !order.HasDeparted(now) {
				return models.NewInvalidTransitionError(order.Status, models.OrderStatusCompleted, "train has not departed")
			}
			return nil
		},
		event:  models.OrderEventCompleted,
		action: "Order completed",
	})
}

// apply runs t against the locked order, releasing seats when the order is
// cancelled, and publishes t.event after commit.
func (l *OrderLifecycle) apply(ctx context.Context, orderID uuid.UUID, t transition) (*models.Order, error) {
	now := l.clock.Now()
	var updated *models.Order
	var from models.OrderStatus

	err := l.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order == nil || (t.owner != nil && order.OwnerID != *t.owner) {
			return models.NewNotFoundError("order %s not found", orderID)
		}

		if err := order.Status.CheckTransition(t.to, t.actor); err != nil {
			return err
		}
		if t.guard != nil {
			if err := t.guard(order, now); err != nil {
				return err
			}
		}

		if t.to == models.OrderStatusCancelled {
			// Release exactly what the order holds, in the booking lock order
			counts := order.SeatsByClass()
			for _, class := range order.SeatClasses() {
				if err := tx.ReleaseSeats(ctx, order.InventoryKey(class), counts[class]); err != nil {
					return fmt.Errorf("failed to release %s seats: %w", class, err)
				}
			}
		}

		update := models.StatusUpdate{
			OrderID: order.ID,
			From:    order.Status,
			To:      t.to,
			At:      now,
		}
		if t.fill != nil {
			t.fill(&update)
		}

		applied, err := tx.UpdateOrderStatus(ctx, update)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if !applied {
			return models.NewInvalidTransitionError(order.Status, t.to, "order changed concurrently")
		}

		from = order.Status
		applyStatusUpdate(order, update)
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"order_id":     updated.ID,
		"owner_id":     updated.OwnerID,
		"train_number": updated.TrainNumber,
		"from_status":  from,
		"to_status":    updated.Status,
		"actor":        t.actor,
	}).Info(t.action)

	publishEvent(ctx, l.publisher, l.logger, models.NewOrderEvent(t.event, updated, now))
	return updated, nil
}

// applyStatusUpdate mirrors a committed StatusUpdate onto the in-memory order
func applyStatusUpdate(order *models.Order, u models.StatusUpdate) {
	at := u.At
	order.Status = u.To
	order.UpdatedAt = at
	switch u.To {
	case models.OrderStatusPaid:
		order.PaymentMethod = u.PaymentMethod
		order.PaymentTimestamp = u.PaymentTimestamp
	case models.OrderStatusCancelled:
		order.CancelledAt = &at
		order.CancellationReason = u.CancellationReason
	case models.OrderStatusCompleted:
		order.CompletedAt = &at
	}
}
