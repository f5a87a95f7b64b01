package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// Store is the persistence boundary of the booking engine. Reads outside
// WithinTx see committed state only.
type Store interface {
	// WithinTx runs fn in one unit of work. fn's error (or a failed commit)
	// rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (*models.Order, error)
	ListOrders(ctx context.Context, ownerID uuid.UUID, filter models.OrderFilter, page models.Page) ([]models.Order, int, error)

	// ListExpiredUnpaid returns unpaid orders created before cutoff, oldest first
	ListExpiredUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	// ListDepartedPaid returns paid orders whose departure is at or before now
	ListDepartedPaid(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	GetInventory(ctx context.Context, key models.InventoryKey) (*models.SeatInventory, error)
	// InventoryDrift lists inventory rows whose consumed count differs from live tickets
	InventoryDrift(ctx context.Context) ([]models.InventoryDrift, error)

	Ping(ctx context.Context) error
}

// Tx is the set of writes available inside a unit of work
type Tx interface {
	// EnsureInventory creates the inventory row if it does not exist yet
	EnsureInventory(ctx context.Context, inv models.SeatInventory) error
	// ReserveSeats locks the row and decrements it by count. A missing row is
	// NotFound, a short row is InsufficientInventory.
	ReserveSeats(ctx context.Context, key models.InventoryKey, count int) (*models.SeatInventory, error)
	// ReleaseSeats increments the row by count. It does not deduplicate: each
	// reservation must be released at most once by the caller.
	ReleaseSeats(ctx context.Context, key models.InventoryKey, count int) error
	// OccupiedSeats lists seat numbers held by live tickets of the key
	OccupiedSeats(ctx context.Context, key models.InventoryKey) ([]string, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	// GetOrderForUpdate loads an order and its tickets, locking the order row
	GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	// UpdateOrderStatus applies the update only while the order is still in
	// update.From and reports whether it did. Moving to cancelled releases the
	// order's tickets.
	UpdateOrderStatus(ctx context.Context, update models.StatusUpdate) (bool, error)
}

// SQLSTATE codes the booking path retries
var retryableCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available (lock_timeout)
	"23505": true, // unique_violation (concurrent idempotency key or seat)
}

// classifyError marks transient contention failures as ConflictRetryable
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var bookingErr *models.BookingError
	if errors.As(err, &bookingErr) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && retryableCodes[pqErr.Code] {
		return models.NewConflictError(err)
	}
	return err
}

// IsRetryable reports whether err is a ConflictRetryable failure
func IsRetryable(err error) bool {
	return errors.Is(err, models.ErrConflictRetryable)
}
