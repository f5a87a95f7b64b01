package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// OrderRepository handles orders and their tickets
type OrderRepository struct{}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

const orderColumns = `
	id, owner_id, train_number, origin, destination,
	to_char(service_date, 'YYYY-MM-DD') AS service_date,
	departure_time, arrival_time, departure_at, total_price, status,
	payment_method, paid_at, cancelled_at, cancellation_reason, completed_at,
	idempotency_key, created_at, updated_at`

const ticketColumns = `
	id, order_id, position, passenger_name, passenger_id_document, passenger_phone,
	seat_class, seat_number, fare_class, price, created_at`

// ============================================================================
// WRITES
// ============================================================================

// Create inserts the order row and one row per ticket
func (r *OrderRepository) Create(ctx context.Context, q sqlx.ExecerContext, order *models.Order) error {
	query := `
		INSERT INTO orders (
			id, owner_id, train_number, origin, destination, service_date,
			departure_time, arrival_time, departure_at, total_price, status,
			idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := q.ExecContext(ctx, query,
		order.ID,
		order.OwnerID,
		order.TrainNumber,
		order.Origin,
		order.Destination,
		order.ServiceDate,
		order.DepartureTime,
		order.ArrivalTime,
		order.DepartureAt,
		order.TotalPrice,
		order.Status,
		order.IdempotencyKey,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	ticketQuery := `
		INSERT INTO tickets (
			id, order_id, position, passenger_name, passenger_id_document, passenger_phone,
			train_number, service_date, seat_class, seat_number, fare_class, price, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	for _, t := range order.Tickets {
		_, err := q.ExecContext(ctx, ticketQuery,
			t.ID,
			order.ID,
			t.Position,
			t.PassengerName,
			t.PassengerIDDocument,
			t.PassengerPhone,
			order.TrainNumber,
			order.ServiceDate,
			t.SeatClass,
			t.SeatNumber,
			t.FareClass,
			t.Price,
			t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create ticket %d: %w", t.Position, err)
		}
	}
	return nil
}

// UpdateStatus is a compare-and-set on status. Cancelling marks the order's
// tickets released in the same statement batch.
func (r *OrderRepository) UpdateStatus(ctx context.Context, q sqlx.ExecerContext, u models.StatusUpdate) (bool, error) {
	var (
		query string
		args  []interface{}
	)

	switch u.To {
	case models.OrderStatusPaid:
		query = `
			UPDATE orders
			SET status = $3, payment_method = $4, paid_at = $5, updated_at = $6
			WHERE id = $1 AND status = $2`
		args = []interface{}{u.OrderID, u.From, u.To, u.PaymentMethod, u.PaymentTimestamp, u.At}
	case models.OrderStatusCancelled:
		query = `
			UPDATE orders
			SET status = $3, cancelled_at = $4, cancellation_reason = $5, updated_at = $4
			WHERE id = $1 AND status = $2`
		args = []interface{}{u.OrderID, u.From, u.To, u.At, u.CancellationReason}
	case models.OrderStatusCompleted:
		query = `
			UPDATE orders
			SET status = $3, completed_at = $4, updated_at = $4
			WHERE id = $1 AND status = $2`
		args = []interface{}{u.OrderID, u.From, u.To, u.At}
	default:
		return false, fmt.Errorf("unsupported target status: %s", u.To)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	if u.To == models.OrderStatusCancelled {
		_, err := q.ExecContext(ctx, `
			UPDATE tickets SET released_at = $2
			WHERE order_id = $1 AND released_at IS NULL`, u.OrderID, u.At)
		if err != nil {
			return false, fmt.Errorf("failed to release tickets: %w", err)
		}
	}
	return true, nil
}

// ============================================================================
// READS
// ============================================================================

// GetByID returns the order with its tickets, or nil if not found
func (r *OrderRepository) GetByID(ctx context.Context, q sqlx.ExtContext, orderID uuid.UUID, forUpdate bool) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return r.getOne(ctx, q, query, orderID)
}

// GetByIdempotencyKey returns the owner's order created with key, or nil
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, q sqlx.ExtContext, ownerID uuid.UUID, key string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 AND idempotency_key = $2`
	return r.getOne(ctx, q, query, ownerID, key)
}

func (r *OrderRepository) getOne(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	orders := []models.Order{order}
	if err := r.attachTickets(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns one page of the owner's orders, newest first, and the total count
func (r *OrderRepository) List(ctx context.Context, q sqlx.ExtContext, ownerID uuid.UUID, filter models.OrderFilter, page models.Page) ([]models.Order, int, error) {
	where := `WHERE owner_id = $1`
	args := []interface{}{ownerID}
	if filter.Status != nil {
		where += ` AND status = $2`
		args = append(args, *filter.Status)
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, `SELECT COUNT(*) FROM orders `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	if total == 0 {
		return []models.Order{}, 0, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	var orders []models.Order
	if err := sqlx.SelectContext(ctx, q, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	if err := r.attachTickets(ctx, q, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// attachTickets loads tickets for all orders in one query
func (r *OrderRepository) attachTickets(ctx context.Context, q sqlx.ExtContext, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	query, args, err := sqlx.In(`SELECT `+ticketColumns+` FROM tickets WHERE order_id IN (?) ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("failed to build ticket query: %w", err)
	}

	var tickets []models.Ticket
	if err := sqlx.SelectContext(ctx, q, &tickets, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load tickets: %w", err)
	}
	for _, t := range tickets {
		i := index[t.OrderID]
		orders[i].Tickets = append(orders[i].Tickets, t)
	}
	return nil
}

// ListExpiredUnpaid returns ids of unpaid orders created before cutoff
func (r *OrderRepository) ListExpiredUnpaid(ctx context.Context, q sqlx.QueryerContext, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM orders
		WHERE status = 'unpaid' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, q, &ids, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired orders: %w", err)
	}
	return ids, nil
}

// ListDepartedPaid returns ids of paid orders whose train left at or before now
func (r *OrderRepository) ListDepartedPaid(ctx context.Context, q sqlx.QueryerContext, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM orders
		WHERE status = 'paid' AND departure_at <= $1
		ORDER BY departure_at
		LIMIT $2`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, q, &ids, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list departed orders: %w", err)
	}
	return ids, nil
}

// OccupiedSeats returns seat numbers held by live tickets of the key
func (r *OrderRepository) OccupiedSeats(ctx context.Context, q sqlx.QueryerContext, key models.InventoryKey) ([]string, error) {
	query := `
		SELECT seat_number FROM tickets
		WHERE train_number = $1 AND service_date = $2 AND seat_class = $3
		  AND released_at IS NULL
		ORDER BY seat_number`

	var seats []string
	if err := sqlx.SelectContext(ctx, q, &seats, query, key.TrainNumber, key.ServiceDate, key.SeatClass); err != nil {
		return nil, fmt.Errorf("failed to load occupied seats %s: %w", key, err)
	}
	return seats, nil
}
