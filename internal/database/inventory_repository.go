package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// InventoryRepository handles seat_inventory rows. Every method takes the
// executor explicitly so callers decide whether it runs inside a transaction.
type InventoryRepository struct{}

// NewInventoryRepository creates a new InventoryRepository
func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{}
}

const inventoryColumns = `
	train_number, to_char(service_date, 'YYYY-MM-DD') AS service_date, seat_class,
	total_seats, available_seats, unit_price, created_at, updated_at`

// Ensure inserts the row unless it already exists. Existing counters are never touched.
func (r *InventoryRepository) Ensure(ctx context.Context, q sqlx.ExtContext, inv models.SeatInventory) error {
	query := `
		INSERT INTO seat_inventory (
			train_number, service_date, seat_class, total_seats, available_seats, unit_price,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $4, $5, NOW(), NOW())
		ON CONFLICT (train_number, service_date, seat_class) DO NOTHING`

	_, err := q.ExecContext(ctx, query,
		inv.TrainNumber, inv.ServiceDate, inv.SeatClass, inv.TotalSeats, inv.UnitPrice)
	if err != nil {
		return fmt.Errorf("failed to ensure inventory %s: %w", inv.InventoryKey, err)
	}
	return nil
}

// Get returns the row, or nil if it does not exist
func (r *InventoryRepository) Get(ctx context.Context, q sqlx.QueryerContext, key models.InventoryKey) (*models.SeatInventory, error) {
	return r.get(ctx, q, key, "")
}

func (r *InventoryRepository) get(ctx context.Context, q sqlx.QueryerContext, key models.InventoryKey, lock string) (*models.SeatInventory, error) {
	query := `SELECT ` + inventoryColumns + `
		FROM seat_inventory
		WHERE train_number = $1 AND service_date = $2 AND seat_class = $3 ` + lock

	var inv models.SeatInventory
	err := sqlx.GetContext(ctx, q, &inv, query, key.TrainNumber, key.ServiceDate, key.SeatClass)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory %s: %w", key, err)
	}
	return &inv, nil
}

// Reserve locks the row and takes count seats from it. The conditional
// UPDATE keeps the decrement safe even if the lock were bypassed.
func (r *InventoryRepository) Reserve(ctx context.Context, q sqlx.ExtContext, key models.InventoryKey, count int) (*models.SeatInventory, error) {
	inv, err := r.get(ctx, q, key, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, models.NewNotFoundError("no seat inventory for %s", key)
	}
	if inv.AvailableSeats < count {
		return nil, models.NewInsufficientInventoryError(key.SeatClass, count, inv.AvailableSeats)
	}

	query := `
		UPDATE seat_inventory
		SET available_seats = available_seats - $4, updated_at = NOW()
		WHERE train_number = $1 AND service_date = $2 AND seat_class = $3
		  AND available_seats >= $4`

	result, err := q.ExecContext(ctx, query, key.TrainNumber, key.ServiceDate, key.SeatClass, count)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve seats %s: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve seats %s: %w", key, err)
	}
	if rows == 0 {
		return nil, models.NewInsufficientInventoryError(key.SeatClass, count, inv.AvailableSeats)
	}

	inv.AvailableSeats -= count
	return inv, nil
}

// Release returns count seats to the row
func (r *InventoryRepository) Release(ctx context.Context, q sqlx.ExecerContext, key models.InventoryKey, count int) error {
	query := `
		UPDATE seat_inventory
		SET available_seats = available_seats + $4, updated_at = NOW()
		WHERE train_number = $1 AND service_date = $2 AND seat_class = $3
		  AND available_seats + $4 <= total_seats`

	result, err := q.ExecContext(ctx, query, key.TrainNumber, key.ServiceDate, key.SeatClass, count)
	if err != nil {
		return fmt.Errorf("failed to release seats %s: %w", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release seats %s: %w", key, err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to release %d seats %s: row missing or release exceeds total", count, key)
	}
	return nil
}

// Drift compares each row's consumed seats with the live tickets issued for it
func (r *InventoryRepository) Drift(ctx context.Context, q sqlx.QueryerContext) ([]models.InventoryDrift, error) {
	query := `
		SELECT i.train_number, to_char(i.service_date, 'YYYY-MM-DD') AS service_date, i.seat_class,
		       i.total_seats, i.available_seats, COALESCE(t.live, 0) AS live_tickets
		FROM seat_inventory i
		LEFT JOIN (
			SELECT train_number, service_date, seat_class, COUNT(*) AS live
			FROM tickets
			WHERE released_at IS NULL
			GROUP BY train_number, service_date, seat_class
		) t ON t.train_number = i.train_number
		   AND t.service_date = i.service_date
		   AND t.seat_class = i.seat_class
		WHERE i.total_seats - i.available_seats <> COALESCE(t.live, 0)
		ORDER BY i.train_number, i.service_date, i.seat_class`

	var drift []models.InventoryDrift
	if err := sqlx.SelectContext(ctx, q, &drift, query); err != nil {
		return nil, fmt.Errorf("failed to audit inventory: %w", err)
	}
	return drift, nil
}
