package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// MemoryStore is an in-process Store for tests and local runs. A unit of
// work holds the store mutex for its whole duration, so units are fully
// serialized. Writes are journaled and undone when fn fails.
//
// Store methods must not be called from inside a WithinTx callback.
type MemoryStore struct {
	mu          sync.Mutex
	inventory   map[models.InventoryKey]*models.SeatInventory
	orders      map[uuid.UUID]*models.Order
	idempotency map[string]uuid.UUID
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inventory:   make(map[models.InventoryKey]*models.SeatInventory),
		orders:      make(map[uuid.UUID]*models.Order),
		idempotency: make(map[string]uuid.UUID),
	}
}

func idempotencyIndex(ownerID uuid.UUID, key string) string {
	return ownerID.String() + "|" + key
}

// WithinTx runs fn with exclusive access to the store
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	// A unit of work that outlived its deadline does not commit
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyOrder(s.orders[orderID]), nil
}

func (s *MemoryStore) GetOrderByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idempotency[idempotencyIndex(ownerID, key)]
	if !ok {
		return nil, nil
	}
	return copyOrder(s.orders[id]), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, ownerID uuid.UUID, filter models.OrderFilter, page models.Page) ([]models.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Order
	for _, o := range s.orders {
		if o.OwnerID != ownerID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Size
	if end > total {
		end = total
	}

	orders := make([]models.Order, 0, end-start)
	for _, o := range matched[start:end] {
		orders = append(orders, *copyOrder(o))
	}
	return orders, total, nil
}

func (s *MemoryStore) ListExpiredUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	return s.selectOrders(limit, func(o *models.Order) bool {
		return o.Status == models.OrderStatusUnpaid && o.CreatedAt.Before(cutoff)
	}, func(o *models.Order) time.Time { return o.CreatedAt })
}

func (s *MemoryStore) ListDepartedPaid(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return s.selectOrders(limit, func(o *models.Order) bool {
		return o.Status == models.OrderStatusPaid && !o.DepartureAt.After(now)
	}, func(o *models.Order) time.Time { return o.DepartureAt })
}

func (s *MemoryStore) selectOrders(limit int, match func(*models.Order) bool, orderBy func(*models.Order) time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.Order
	for _, o := range s.orders {
		if match(o) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return orderBy(matched[i]).Before(orderBy(matched[j])) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	ids := make([]uuid.UUID, len(matched))
	for i, o := range matched {
		ids[i] = o.ID
	}
	return ids, nil
}

func (s *MemoryStore) GetInventory(ctx context.Context, key models.InventoryKey) (*models.SeatInventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.inventory[key]
	if !ok {
		return nil, nil
	}
	out := *inv
	return &out, nil
}

func (s *MemoryStore) InventoryDrift(ctx context.Context) ([]models.InventoryDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[models.InventoryKey]int)
	for _, o := range s.orders {
		if !o.Status.HoldsSeats() {
			continue
		}
		for _, t := range o.Tickets {
			live[o.InventoryKey(t.SeatClass)]++
		}
	}

	var drift []models.InventoryDrift
	for key, inv := range s.inventory {
		if inv.ConsumedSeats() != live[key] {
			drift = append(drift, models.InventoryDrift{
				InventoryKey:   key,
				TotalSeats:     inv.TotalSeats,
				AvailableSeats: inv.AvailableSeats,
				LiveTickets:    live[key],
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].String() < drift[j].String() })
	return drift, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// SeedInventory puts an inventory row in place, replacing any existing one
func (s *MemoryStore) SeedInventory(inv models.SeatInventory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	s.inventory[inv.InventoryKey] = &inv
}

// OrderCount returns the number of stored orders in any status
func (s *MemoryStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// ============================================================================
// TRANSACTION
// ============================================================================

type memoryTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) EnsureInventory(ctx context.Context, inv models.SeatInventory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.store.inventory[inv.InventoryKey]; ok {
		return nil
	}
	now := time.Now()
	inv.AvailableSeats = inv.TotalSeats
	inv.CreatedAt, inv.UpdatedAt = now, now
	t.store.inventory[inv.InventoryKey] = &inv
	t.undo = append(t.undo, func() { delete(t.store.inventory, inv.InventoryKey) })
	return nil
}

func (t *memoryTx) ReserveSeats(ctx context.Context, key models.InventoryKey, count int) (*models.SeatInventory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv, ok := t.store.inventory[key]
	if !ok {
		return nil, models.NewNotFoundError("no seat inventory for %s", key)
	}
	if inv.AvailableSeats < count {
		return nil, models.NewInsufficientInventoryError(key.SeatClass, count, inv.AvailableSeats)
	}

	inv.AvailableSeats -= count
	t.undo = append(t.undo, func() { inv.AvailableSeats += count })

	out := *inv
	return &out, nil
}

func (t *memoryTx) ReleaseSeats(ctx context.Context, key models.InventoryKey, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inv, ok := t.store.inventory[key]
	if !ok || inv.AvailableSeats+count > inv.TotalSeats {
		return fmt.Errorf("failed to release %d seats %s: row missing or release exceeds total", count, key)
	}

	inv.AvailableSeats += count
	t.undo = append(t.undo, func() { inv.AvailableSeats -= count })
	return nil
}

func (t *memoryTx) OccupiedSeats(ctx context.Context, key models.InventoryKey) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var seats []string
	for _, o := range t.store.orders {
		if !o.Status.HoldsSeats() || o.TrainNumber != key.TrainNumber || o.ServiceDate != key.ServiceDate {
			continue
		}
		for _, ticket := range o.Tickets {
			if ticket.SeatClass == key.SeatClass {
				seats = append(seats, ticket.SeatNumber)
			}
		}
	}
	sort.Strings(seats)
	return seats, nil
}

func (t *memoryTx) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, exists := t.store.orders[order.ID]; exists {
		return models.NewConflictError(errors.New("duplicate order id"))
	}

	var idemKey string
	if order.IdempotencyKey != nil {
		idemKey = idempotencyIndex(order.OwnerID, *order.IdempotencyKey)
		if _, exists := t.store.idempotency[idemKey]; exists {
			return models.NewConflictError(errors.New("duplicate idempotency key"))
		}
	}

	for _, ticket := range order.Tickets {
		occupied, err := t.OccupiedSeats(ctx, order.InventoryKey(ticket.SeatClass))
		if err != nil {
			return err
		}
		i := sort.SearchStrings(occupied, ticket.SeatNumber)
		if i < len(occupied) && occupied[i] == ticket.SeatNumber {
			return models.NewConflictError(fmt.Errorf("seat %s already taken", ticket.SeatNumber))
		}
	}

	t.store.orders[order.ID] = copyOrder(order)
	if idemKey != "" {
		t.store.idempotency[idemKey] = order.ID
	}
	t.undo = append(t.undo, func() {
		delete(t.store.orders, order.ID)
		if idemKey != "" {
			delete(t.store.idempotency, idemKey)
		}
	})
	return nil
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return copyOrder(t.store.orders[orderID]), nil
}

func (t *memoryTx) UpdateOrderStatus(ctx context.Context, u models.StatusUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	current, ok := t.store.orders[u.OrderID]
	if !ok || current.Status != u.From {
		return false, nil
	}

	previous := copyOrder(current)
	next := copyOrder(current)
	next.Status = u.To
	next.UpdatedAt = u.At

	switch u.To {
	case models.OrderStatusPaid:
		next.PaymentMethod = copyString(u.PaymentMethod)
		next.PaymentTimestamp = copyTime(u.PaymentTimestamp)
	case models.OrderStatusCancelled:
		at := u.At
		next.CancelledAt = &at
		next.CancellationReason = copyString(u.CancellationReason)
	case models.OrderStatusCompleted:
		at := u.At
		next.CompletedAt = &at
	default:
		return false, fmt.Errorf("unsupported target status: %s", u.To)
	}

	t.store.orders[u.OrderID] = next
	t.undo = append(t.undo, func() { t.store.orders[u.OrderID] = previous })
	return true, nil
}

// ============================================================================
// COPY HELPERS
// ============================================================================

func copyOrder(o *models.Order) *models.Order {
	if o == nil {
		return nil
	}
	out := *o
	out.PaymentMethod = copyString(o.PaymentMethod)
	out.PaymentTimestamp = copyTime(o.PaymentTimestamp)
	out.CancelledAt = copyTime(o.CancelledAt)
	out.CancellationReason = copyString(o.CancellationReason)
	out.CompletedAt = copyTime(o.CompletedAt)
	out.IdempotencyKey = copyString(o.IdempotencyKey)
	if o.Tickets != nil {
		out.Tickets = make([]models.Ticket, len(o.Tickets))
		copy(out.Tickets, o.Tickets)
	}
	return &out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
