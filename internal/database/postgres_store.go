package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// PostgresStore implements Store on sqlx/lib/pq
type PostgresStore struct {
	db          *sqlx.DB
	inventory   *InventoryRepository
	orders      *OrderRepository
	lockTimeout time.Duration
}

// NewPostgresStore creates a store. lockTimeout bounds how long a booking
// waits for an inventory row lock before failing with ConflictRetryable.
func NewPostgresStore(db *sqlx.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		db:          db,
		inventory:   NewInventoryRepository(),
		orders:      NewOrderRepository(),
		lockTimeout: lockTimeout,
	}
}

// WithinTx runs fn in a read committed transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if s.lockTimeout > 0 {
		// SET does not take bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &postgresTx{tx: sqlTx, store: s}); err != nil {
		return classifyError(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classifyError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.GetByID(ctx, s.db, orderID, false)
}

func (s *PostgresStore) GetOrderByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (*models.Order, error) {
	return s.orders.GetByIdempotencyKey(ctx, s.db, ownerID, key)
}

func (s *PostgresStore) ListOrders(ctx context.Context, ownerID uuid.UUID, filter models.OrderFilter, page models.Page) ([]models.Order, int, error) {
	return s.orders.List(ctx, s.db, ownerID, filter, page)
}

func (s *PostgresStore) ListExpiredUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return s.orders.ListExpiredUnpaid(ctx, s.db, cutoff, limit)
}

func (s *PostgresStore) ListDepartedPaid(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return s.orders.ListDepartedPaid(ctx, s.db, now, limit)
}

func (s *PostgresStore) GetInventory(ctx context.Context, key models.InventoryKey) (*models.SeatInventory, error) {
	return s.inventory.Get(ctx, s.db, key)
}

func (s *PostgresStore) InventoryDrift(ctx context.Context) ([]models.InventoryDrift, error) {
	return s.inventory.Drift(ctx, s.db)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// postgresTx routes Tx calls to the repositories on one *sqlx.Tx
type postgresTx struct {
	tx    *sqlx.Tx
	store *PostgresStore
}

func (t *postgresTx) EnsureInventory(ctx context.Context, inv models.SeatInventory) error {
	return t.store.inventory.Ensure(ctx, t.tx, inv)
}

func (t *postgresTx) ReserveSeats(ctx context.Context, key models.InventoryKey, count int) (*models.SeatInventory, error) {
	return t.store.inventory.Reserve(ctx, t.tx, key, count)
}

func (t *postgresTx) ReleaseSeats(ctx context.Context, key models.InventoryKey, count int) error {
	return t.store.inventory.Release(ctx, t.tx, key, count)
}

func (t *postgresTx) OccupiedSeats(ctx context.Context, key models.InventoryKey) ([]string, error) {
	return t.store.orders.OccupiedSeats(ctx, t.tx, key)
}

func (t *postgresTx) CreateOrder(ctx context.Context, order *models.Order) error {
	return t.store.orders.Create(ctx, t.tx, order)
}

func (t *postgresTx) GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return t.store.orders.GetByID(ctx, t.tx, orderID, true)
}

func (t *postgresTx) UpdateOrderStatus(ctx context.Context, update models.StatusUpdate) (bool, error) {
	return t.store.orders.UpdateStatus(ctx, t.tx, update)
}
