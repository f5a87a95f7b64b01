package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
	"github.com/smarttransit/rail-reservation-backend/pkg/retry"
	"github.com/smarttransit/rail-reservation-backend/pkg/validator"
)

// CoordinatorConfig holds configuration for the booking coordinator
type CoordinatorConfig struct {
	MaxAttempts int            // Attempts per booking on retryable conflicts (default 3)
	TxTimeout   time.Duration  // Bound on one unit of work (default 5s)
	Location    *time.Location // Timezone of timetable clock times (default UTC)
}

// DefaultCoordinatorConfig returns default configuration
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		MaxAttempts: 3,
		TxTimeout:   5 * time.Second,
		Location:    time.UTC,
	}
}

// BookingCoordinator turns a booking request into a persisted order. All
// inventory decrements, seat assignments and the order itself commit together
// or not at all.
type BookingCoordinator struct {
	store     database.Store
	trains    TrainLookup
	allocator *SeatAllocator
	publisher EventPublisher
	clock     Clock
	phones    *validator.PhoneValidator
	retrier   *retry.Retrier
	config    CoordinatorConfig
	logger    *logrus.Logger
}

// NewBookingCoordinator creates a new booking coordinator
func NewBookingCoordinator(
	store database.Store,
	trains TrainLookup,
	allocator *SeatAllocator,
	publisher EventPublisher,
	clock Clock,
	config CoordinatorConfig,
	logger *logrus.Logger,
) *BookingCoordinator {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = config.MaxAttempts
	retryConfig.ShouldRetry = database.IsRetryable

	return &BookingCoordinator{
		store:     store,
		trains:    trains,
		allocator: allocator,
		publisher: publisher,
		clock:     clock,
		phones:    validator.NewPhoneValidator(),
		retrier:   retry.New(retryConfig),
		config:    config,
		logger:    logger,
	}
}

// ============================================================================
// CREATE ORDER
// ============================================================================

// CreateOrder books one seat per ticket request for ownerID. A repeated
// idempotency key returns the order created the first time.
func (c *BookingCoordinator) CreateOrder(ctx context.Context, ownerID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, error) {
	order, _, err := c.Book(ctx, ownerID, req)
	return order, err
}

// Book is CreateOrder that also reports whether a new order was created
// (false when an earlier order with the same idempotency key was returned).
func (c *BookingCoordinator) Book(ctx context.Context, ownerID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, bool, error) {
	// 1. Validate request shape
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	passengers, err := c.normalizePassengers(req.Passengers)
	if err != nil {
		return nil, false, err
	}

	// 2. Resolve the train and the classes it sells
	train, err := c.trains.GetTrain(ctx, req.Train.TrainNumber, req.Train.ServiceDate)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up train: %w", err)
	}
	if train == nil || !train.Active {
		return nil, false, models.NewNotFoundError("train %s does not run on %s", req.Train.TrainNumber, req.Train.ServiceDate)
	}
	departureAt, err := models.DepartureInstant(train.ServiceDate, train.DepartureTime, c.config.Location)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve departure: %w", err)
	}
	if !c.clock.Now().Before(departureAt) {
		return nil, false, models.NewNotFoundError("train %s on %s has departed", train.TrainNumber, train.ServiceDate)
	}

	groups := req.TicketsByClass()
	classes := make([]string, 0, len(groups))
	for class := range groups {
		if _, ok := train.Class(class); !ok {
			return nil, false, models.NewNotFoundError("train %s does not sell %s seats", train.TrainNumber, class)
		}
		classes = append(classes, class)
	}
	// Fixed lock order across classes
	sort.Strings(classes)

	plan := &bookingPlan{
		ownerID:     ownerID,
		req:         req,
		passengers:  passengers,
		train:       train,
		departureAt: departureAt,
		classes:     classes,
		groups:      groups,
	}

	// 3. Run the unit of work, retrying on contention
	var order *models.Order
	created := false
	result := c.retrier.DoWithCallback(ctx, func(ctx context.Context) error {
		if key := idempotencyKey(req); key != "" {
			existing, err := c.store.GetOrderByIdempotencyKey(ctx, ownerID, key)
			if err != nil {
				return fmt.Errorf("failed to check idempotency: %w", err)
			}
			if existing != nil {
				order, created = existing, false
				return nil
			}
		}

		o, err := c.attempt(ctx, plan)
		if err != nil {
			return err
		}
		order, created = o, true
		return nil
	}, func(attempt int, err error, next time.Duration) {
		c.logger.WithFields(logrus.Fields{
			"owner_id":     ownerID,
			"train_number": train.TrainNumber,
			"attempt":      attempt,
			"backoff_ms":   next.Milliseconds(),
		}).WithError(err).Warn("Booking conflict, retrying")
	})

	if result.Err != nil {
		if result.Exhausted {
			c.logger.WithFields(logrus.Fields{
				"owner_id":     ownerID,
				"train_number": train.TrainNumber,
				"attempts":     result.Attempts,
			}).Error("Booking retries exhausted")
		}
		return nil, false, result.Err
	}

	if !created {
		c.logger.WithFields(logrus.Fields{
			"order_id": order.ID,
			"owner_id": ownerID,
		}).Info("Returning existing order for idempotency key")
		return order, false, nil
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"owner_id":     ownerID,
		"train_number": order.TrainNumber,
		"service_date": order.ServiceDate,
		"tickets":      len(order.Tickets),
		"total_price":  order.TotalPrice,
		"attempts":     result.Attempts,
	}).Info("Order created")

	publishEvent(ctx, c.publisher, c.logger, models.NewOrderEvent(models.OrderEventCreated, order, order.CreatedAt))
	return order, true, nil
}

// bookingPlan is the validated, storage-independent part of a booking
type bookingPlan struct {
	ownerID     uuid.UUID
	req         *models.CreateOrderRequest
	passengers  []models.Passenger
	train       *models.TrainInfo
	departureAt time.Time
	classes     []string
	groups      map[string][]int
}

// attempt runs one unit of work for the plan
func (c *BookingCoordinator) attempt(ctx context.Context, plan *bookingPlan) (*models.Order, error) {
	txCtx, cancel := context.WithTimeout(ctx, c.config.TxTimeout)
	defer cancel()

	now := c.clock.Now()
	order := &models.Order{
		ID:             uuid.New(),
		OwnerID:        plan.ownerID,
		TrainNumber:    plan.train.TrainNumber,
		Origin:         firstNonEmpty(plan.req.Train.Origin, plan.train.Origin),
		Destination:    firstNonEmpty(plan.req.Train.Destination, plan.train.Destination),
		ServiceDate:    plan.train.ServiceDate,
		DepartureTime:  plan.train.DepartureTime,
		ArrivalTime:    plan.train.ArrivalTime,
		DepartureAt:    plan.departureAt,
		Status:         models.OrderStatusUnpaid,
		IdempotencyKey: optionalString(idempotencyKey(plan.req)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := c.store.WithinTx(txCtx, func(ctx context.Context, tx database.Tx) error {
		tickets := make([]models.Ticket, len(plan.req.Tickets))

		for _, class := range plan.classes {
			indexes := plan.groups[class]
			trainClass, _ := plan.train.Class(class)
			key := order.InventoryKey(class)

			if err := tx.EnsureInventory(ctx, models.SeatInventory{
				InventoryKey:   key,
				TotalSeats:     trainClass.TotalSeats,
				AvailableSeats: trainClass.TotalSeats,
				UnitPrice:      trainClass.UnitPrice,
			}); err != nil {
				return fmt.Errorf("failed to ensure inventory %s: %w", key, err)
			}

			inv, err := tx.ReserveSeats(ctx, key, len(indexes))
			if err != nil {
				return fmt.Errorf("failed to reserve %s seats: %w", class, err)
			}

			// Read after the row lock so concurrent bookings see each other's seats
			occupied, err := tx.OccupiedSeats(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to load occupied seats: %w", err)
			}

			prefs := make([]string, len(indexes))
			for j, i := range indexes {
				prefs[j] = plan.req.Tickets[i].PreferredColumn
			}
			seats, err := c.allocator.Allocate(AllocationRequest{
				SeatClass:   class,
				TotalSeats:  inv.TotalSeats,
				Occupied:    occupied,
				Preferences: prefs,
			})
			if err != nil {
				return fmt.Errorf("failed to assign %s seats: %w", class, err)
			}

			for j, i := range indexes {
				ticketReq := plan.req.Tickets[i]
				passenger := plan.passengers[ticketReq.PassengerIndex]
				tickets[i] = models.Ticket{
					ID:                  uuid.New(),
					OrderID:             order.ID,
					Position:            i,
					PassengerName:       passenger.Name,
					PassengerIDDocument: passenger.IDDocument,
					PassengerPhone:      passenger.Phone,
					SeatClass:           class,
					SeatNumber:          seats[j],
					FareClass:           ticketReq.FareClassOrDefault(),
					Price:               inv.UnitPrice,
					CreatedAt:           now,
				}
				order.TotalPrice += inv.UnitPrice
			}
		}

		order.Tickets = tickets
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		// A unit of work cut short by its own timeout is contention, not a caller abort
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, models.ErrConflictRetryable) {
			return nil, models.NewConflictError(err)
		}
		return nil, err
	}
	return order, nil
}

// normalizePassengers trims names and normalizes optional phone numbers
func (c *BookingCoordinator) normalizePassengers(in []models.Passenger) ([]models.Passenger, error) {
	out := make([]models.Passenger, len(in))
	for i, p := range in {
		out[i] = p
		if p.Phone == "" {
			continue
		}
		phone, err := c.phones.Validate(p.Phone)
		if err != nil {
			return nil, models.NewValidationError("passengers[%d].phone: %v", i, err)
		}
		out[i].Phone = phone
	}
	return out, nil
}

func idempotencyKey(req *models.CreateOrderRequest) string {
	if req.IdempotencyKey == nil {
		return ""
	}
	return *req.IdempotencyKey
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
