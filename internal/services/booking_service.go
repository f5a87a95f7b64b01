package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// BookingService is the library surface of the booking engine
type BookingService struct {
	store       database.Store
	coordinator *BookingCoordinator
	lifecycle   *OrderLifecycle
}

// NewBookingService creates a new booking service
func NewBookingService(store database.Store, coordinator *BookingCoordinator, lifecycle *OrderLifecycle) *BookingService {
	return &BookingService{
		store:       store,
		coordinator: coordinator,
		lifecycle:   lifecycle,
	}
}

// CreateOrder books tickets for ownerID
func (s *BookingService) CreateOrder(ctx context.Context, ownerID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, error) {
	return s.coordinator.CreateOrder(ctx, ownerID, req)
}

// BookOrder is CreateOrder that also reports whether the order is new
func (s *BookingService) BookOrder(ctx context.Context, ownerID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, bool, error) {
	return s.coordinator.Book(ctx, ownerID, req)
}

// CancelOrder cancels an order of ownerID
func (s *BookingService) CancelOrder(ctx context.Context, ownerID, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.lifecycle.Cancel(ctx, ownerID, orderID, reason)
}

// MarkPaid records payment of an order of ownerID
func (s *BookingService) MarkPaid(ctx context.Context, ownerID, orderID uuid.UUID, method string, paidAt *time.Time) (*models.Order, error) {
	return s.lifecycle.MarkPaid(ctx, ownerID, orderID, method, paidAt)
}

// GetOrder returns one order of ownerID. Orders of other owners are not found.
func (s *BookingService) GetOrder(ctx context.Context, ownerID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil || order.OwnerID != ownerID {
		return nil, models.NewNotFoundError("order %s not found", orderID)
	}
	return order, nil
}

// ListOrders returns a page of ownerID's orders, newest first
func (s *BookingService) ListOrders(ctx context.Context, ownerID uuid.UUID, filter models.OrderFilter, page models.Page) (*models.OrderPage, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, models.NewValidationError("unknown order status %q", *filter.Status)
	}
	page = page.Normalize()

	orders, total, err := s.store.ListOrders(ctx, ownerID, filter, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return models.NewOrderPage(orders, total, page), nil
}

// GetInventory exposes current availability of one inventory row
func (s *BookingService) GetInventory(ctx context.Context, key models.InventoryKey) (*models.SeatInventory, error) {
	inv, err := s.store.GetInventory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	if inv == nil {
		return nil, models.NewNotFoundError("no inventory for %s", key)
	}
	return inv, nil
}
