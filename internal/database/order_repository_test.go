package database

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderColumnNames = []string{
	"id", "owner_id", "train_number", "origin", "destination", "service_date",
	"departure_time", "arrival_time", "departure_at", "total_price", "status",
	"payment_method", "paid_at", "cancelled_at", "cancellation_reason", "completed_at",
	"idempotency_key", "created_at", "updated_at",
}

var ticketColumnNames = []string{
	"id", "order_id", "position", "passenger_name", "passenger_id_document", "passenger_phone",
	"seat_class", "seat_number", "fare_class", "price", "created_at",
}

func addOrderRow(rows *sqlmock.Rows, id, owner uuid.UUID, status string, createdAt time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, owner, "G101", "Beijing South", "Shanghai Hongqiao", "2025-12-15",
		"08:00", "12:30", time.Date(2025, 12, 15, 8, 0, 0, 0, time.UTC), 111.0, status,
		nil, nil, nil, nil, nil,
		nil, createdAt, createdAt,
	)
}

func sampleOrder() *models.Order {
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	orderID := uuid.New()
	return &models.Order{
		ID:            orderID,
		OwnerID:       uuid.New(),
		TrainNumber:   "G101",
		Origin:        "Beijing South",
		Destination:   "Shanghai Hongqiao",
		ServiceDate:   "2025-12-15",
		DepartureTime: "08:00",
		ArrivalTime:   "12:30",
		DepartureAt:   time.Date(2025, 12, 15, 8, 0, 0, 0, time.UTC),
		TotalPrice:    111.0,
		Status:        models.OrderStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
		Tickets: []models.Ticket{
			{ID: uuid.New(), OrderID: orderID, Position: 0, PassengerName: "Li Wei", PassengerIDDocument: "P1",
				SeatClass: "second-class", SeatNumber: "0101A", FareClass: "adult", Price: 55.5, CreatedAt: now},
			{ID: uuid.New(), OrderID: orderID, Position: 1, PassengerName: "Wang Fang", PassengerIDDocument: "P2",
				SeatClass: "second-class", SeatNumber: "0101B", FareClass: "adult", Price: 55.5, CreatedAt: now},
		},
	}
}

func TestOrderRepository_Create(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		order := sampleOrder()

		mock.ExpectExec(`INSERT INTO orders`).
			WithArgs(order.ID, order.OwnerID, "G101", "Beijing South", "Shanghai Hongqiao", "2025-12-15",
				"08:00", "12:30", order.DepartureAt, 111.0, "unpaid", nil, order.CreatedAt, order.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		for _, ticket := range order.Tickets {
			mock.ExpectExec(`INSERT INTO tickets`).
				WithArgs(ticket.ID, order.ID, ticket.Position, ticket.PassengerName, ticket.PassengerIDDocument, "",
					"G101", "2025-12-15", "second-class", ticket.SeatNumber, "adult", 55.5, ticket.CreatedAt).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}

		require.NoError(t, repo.Create(ctx, db, order))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ticket insert fails", func(t *testing.T) {
		db, mock := newMockDB(t)
		order := sampleOrder()

		mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO tickets`).WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(ctx, db, order)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create ticket 0")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	at := time.Date(2025, 12, 1, 10, 30, 0, 0, time.UTC)

	t.Run("Paid", func(t *testing.T) {
		db, mock := newMockDB(t)
		id := uuid.New()
		method := "alipay"

		mock.ExpectExec(`UPDATE orders\s+SET status = \$3, payment_method = \$4`).
			WithArgs(id, "unpaid", "paid", method, at, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := repo.UpdateStatus(ctx, db, models.StatusUpdate{
			OrderID: id, From: models.OrderStatusUnpaid, To: models.OrderStatusPaid,
			At: at, PaymentMethod: &method, PaymentTimestamp: &at,
		})
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Cancelled releases tickets", func(t *testing.T) {
		db, mock := newMockDB(t)
		id := uuid.New()
		reason := "owner request"

		mock.ExpectExec(`UPDATE orders\s+SET status = \$3, cancelled_at = \$4`).
			WithArgs(id, "paid", "cancelled", at, reason).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE tickets SET released_at = \$2`).
			WithArgs(id, at).
			WillReturnResult(sqlmock.NewResult(0, 2))

		applied, err := repo.UpdateStatus(ctx, db, models.StatusUpdate{
			OrderID: id, From: models.OrderStatusPaid, To: models.OrderStatusCancelled,
			At: at, CancellationReason: &reason,
		})
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Status moved on", func(t *testing.T) {
		db, mock := newMockDB(t)
		id := uuid.New()

		mock.ExpectExec(`UPDATE orders`).
			WithArgs(id, "paid", "completed", at).
			WillReturnResult(sqlmock.NewResult(0, 0))

		applied, err := repo.UpdateStatus(ctx, db, models.StatusUpdate{
			OrderID: id, From: models.OrderStatusPaid, To: models.OrderStatusCompleted, At: at,
		})
		require.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unsupported target", func(t *testing.T) {
		db, _ := newMockDB(t)
		_, err := repo.UpdateStatus(ctx, db, models.StatusUpdate{OrderID: uuid.New(), To: models.OrderStatusUnpaid})
		assert.Error(t, err)
	})
}

func TestOrderRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	t.Run("Success with tickets", func(t *testing.T) {
		db, mock := newMockDB(t)
		id, owner := uuid.New(), uuid.New()
		created := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

		mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1 FOR UPDATE`).
			WithArgs(id).
			WillReturnRows(addOrderRow(sqlmock.NewRows(orderColumnNames), id, owner, "unpaid", created))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM tickets WHERE order_id IN ($1) ORDER BY order_id, position`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(ticketColumnNames).
				AddRow(uuid.New(), id, 0, "Li Wei", "P1", "", "second-class", "0101A", "adult", 55.5, created).
				AddRow(uuid.New(), id, 1, "Wang Fang", "P2", "", "second-class", "0101B", "adult", 55.5, created))

		order, err := repo.GetByID(ctx, db, id, true)
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, models.OrderStatusUnpaid, order.Status)
		assert.Equal(t, "2025-12-15", order.ServiceDate)
		require.Len(t, order.Tickets, 2)
		assert.Equal(t, "0101B", order.Tickets[1].SeatNumber)
		assert.Equal(t, map[string]int{"second-class": 2}, order.SeatsByClass())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		id := uuid.New()

		mock.ExpectQuery(`SELECT (.+) FROM orders WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(orderColumnNames))

		order, err := repo.GetByID(ctx, db, id, false)
		require.NoError(t, err)
		assert.Nil(t, order)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()

	t.Run("Filtered page", func(t *testing.T) {
		db, mock := newMockDB(t)
		owner := uuid.New()
		id1, id2 := uuid.New(), uuid.New()
		status := models.OrderStatusUnpaid
		created := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM orders WHERE owner_id = $1 AND status = $2`)).
			WithArgs(owner, "unpaid").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

		rows := sqlmock.NewRows(orderColumnNames)
		addOrderRow(rows, id1, owner, "unpaid", created.Add(time.Minute))
		addOrderRow(rows, id2, owner, "unpaid", created)
		mock.ExpectQuery(`ORDER BY created_at DESC, id LIMIT \$3 OFFSET \$4`).
			WithArgs(owner, "unpaid", 2, 2).
			WillReturnRows(rows)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE order_id IN ($1, $2)`)).
			WithArgs(id1, id2).
			WillReturnRows(sqlmock.NewRows(ticketColumnNames).
				AddRow(uuid.New(), id2, 0, "Li Wei", "P1", "", "first", "0101A", "adult", 90.0, created))

		orders, total, err := repo.List(ctx, db, owner, models.OrderFilter{Status: &status}, models.Page{Number: 2, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, 7, total)
		require.Len(t, orders, 2)
		assert.Empty(t, orders[0].Tickets)
		assert.Len(t, orders[1].Tickets, 1)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty", func(t *testing.T) {
		db, mock := newMockDB(t)
		owner := uuid.New()

		mock.ExpectQuery(`SELECT COUNT`).
			WithArgs(owner).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		orders, total, err := repo.List(ctx, db, owner, models.OrderFilter{}, models.Page{Number: 1, Size: 20})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, orders)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderRepository_Sweeps(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	now := time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC)

	t.Run("Expired unpaid", func(t *testing.T) {
		db, mock := newMockDB(t)
		id := uuid.New()
		cutoff := now.Add(-30 * time.Minute)

		mock.ExpectQuery(`WHERE status = 'unpaid' AND created_at < \$1`).
			WithArgs(cutoff, 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))

		ids, err := repo.ListExpiredUnpaid(ctx, db, cutoff, 100)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Departed paid", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectQuery(`WHERE status = 'paid' AND departure_at <= \$1`).
			WithArgs(now, 50).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		ids, err := repo.ListDepartedPaid(ctx, db, now, 50)
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Occupied seats", func(t *testing.T) {
		db, mock := newMockDB(t)

		mock.ExpectQuery(`SELECT seat_number FROM tickets (.+) AND released_at IS NULL`).
			WithArgs("G101", "2025-12-15", "second-class").
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow("0101A").AddRow("0101B"))

		seats, err := repo.OccupiedSeats(ctx, db, testKey)
		require.NoError(t, err)
		assert.Equal(t, []string{"0101A", "0101B"}, seats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
