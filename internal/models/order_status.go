package models

// OrderStatus represents the lifecycle state of an order
// Matches PostgreSQL ENUM: order_status
type OrderStatus string

const (
	OrderStatusUnpaid    OrderStatus = "unpaid"    // Seats reserved, waiting for payment
	OrderStatusPaid      OrderStatus = "paid"      // Payment confirmed
	OrderStatusCancelled OrderStatus = "cancelled" // Cancelled by owner or expired, seats released
	OrderStatusCompleted OrderStatus = "completed" // Train departed
)

// Actor identifies who triggers a transition
type Actor string

const (
	ActorOwner      Actor = "owner"
	ActorPayment    Actor = "payment"
	ActorReconciler Actor = "reconciler"
)

// orderTransitions lists every legal transition and the actors allowed to trigger it
var orderTransitions = map[OrderStatus]map[OrderStatus][]Actor{
	OrderStatusUnpaid: {
		OrderStatusPaid:      {ActorPayment},
		OrderStatusCancelled: {ActorOwner, ActorReconciler},
	},
	OrderStatusPaid: {
		OrderStatusCompleted: {ActorReconciler},
		OrderStatusCancelled: {ActorOwner},
	},
}

// IsValid reports whether s is a known status
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusUnpaid, OrderStatusPaid, OrderStatusCancelled, OrderStatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusCompleted
}

// HoldsSeats reports whether an order in status s still consumes inventory
func (s OrderStatus) HoldsSeats() bool {
	return s == OrderStatusUnpaid || s == OrderStatusPaid || s == OrderStatusCompleted
}

// CheckTransition returns nil when actor may move an order from s to next,
// otherwise an InvalidTransition error carrying the reason.
func (s OrderStatus) CheckTransition(next OrderStatus, actor Actor) error {
	if s.IsTerminal() {
		return NewInvalidTransitionError(s, next, "order is "+string(s))
	}
	actors, ok := orderTransitions[s][next]
	if !ok {
		return NewInvalidTransitionError(s, next, "")
	}
	for _, a := range actors {
		if a == actor {
			return nil
		}
	}
	return NewInvalidTransitionError(s, next, "not allowed for "+string(actor))
}
