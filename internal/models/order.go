package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// ORDER MODEL (orders table)
// ============================================================================

// Order is one booking transaction. It owns 1..N tickets and is never deleted.
type Order struct {
	ID                 uuid.UUID   `json:"order_id" db:"id"`
	OwnerID            uuid.UUID   `json:"owner_id" db:"owner_id"`
	TrainNumber        string      `json:"train_number" db:"train_number"`
	Origin             string      `json:"origin" db:"origin"`
	Destination        string      `json:"destination" db:"destination"`
	ServiceDate        string      `json:"service_date" db:"service_date"`
	DepartureTime      string      `json:"departure_time" db:"departure_time"`
	ArrivalTime        string      `json:"arrival_time" db:"arrival_time"`
	DepartureAt        time.Time   `json:"departure_at" db:"departure_at"`
	TotalPrice         float64     `json:"total_price" db:"total_price"`
	Status             OrderStatus `json:"status" db:"status"`
	PaymentMethod      *string     `json:"payment_method,omitempty" db:"payment_method"`
	PaymentTimestamp   *time.Time  `json:"payment_timestamp,omitempty" db:"paid_at"`
	CancelledAt        *time.Time  `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string     `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	IdempotencyKey     *string     `json:"-" db:"idempotency_key"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
	Tickets            []Ticket    `json:"tickets" db:"-"`
}

// Ticket is an order line item with a passenger snapshot taken at booking time
type Ticket struct {
	ID                  uuid.UUID `json:"ticket_id" db:"id"`
	OrderID             uuid.UUID `json:"order_id" db:"order_id"`
	Position            int       `json:"position" db:"position"`
	PassengerName       string    `json:"passenger_name" db:"passenger_name"`
	PassengerIDDocument string    `json:"passenger_id_document" db:"passenger_id_document"`
	PassengerPhone      string    `json:"passenger_phone,omitempty" db:"passenger_phone"`
	SeatClass           string    `json:"seat_class" db:"seat_class"`
	SeatNumber          string    `json:"seat_number" db:"seat_number"`
	FareClass           string    `json:"fare_class" db:"fare_class"`
	Price               float64   `json:"price" db:"price"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// SeatsByClass counts the order's tickets per seat class. This is the amount
// the order holds in inventory and the amount released on cancellation.
func (o *Order) SeatsByClass() map[string]int {
	counts := make(map[string]int)
	for _, t := range o.Tickets {
		counts[t.SeatClass]++
	}
	return counts
}

// SeatClasses returns the order's seat classes in sorted order
func (o *Order) SeatClasses() []string {
	counts := o.SeatsByClass()
	classes := make([]string, 0, len(counts))
	for class := range counts {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// InventoryKey returns the inventory row holding this order's seats of a class
func (o *Order) InventoryKey(seatClass string) InventoryKey {
	return InventoryKey{TrainNumber: o.TrainNumber, ServiceDate: o.ServiceDate, SeatClass: seatClass}
}

// PaymentDeadline is the instant after which an unpaid order is expired
func (o *Order) PaymentDeadline(ttl time.Duration) time.Time {
	return o.CreatedAt.Add(ttl)
}

// HasDeparted reports whether the train has left at instant now
func (o *Order) HasDeparted(now time.Time) bool {
	return !now.Before(o.DepartureAt)
}

// DepartureInstant combines a service date ("2006-01-02") and a departure
// clock time ("15:04") in loc.
func DepartureInstant(serviceDate, departureTime string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", serviceDate+" "+departureTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid departure %s %s: %w", serviceDate, departureTime, err)
	}
	return t, nil
}

// ============================================================================
// STATUS UPDATE
// ============================================================================

// StatusUpdate is a compare-and-set status write: it applies only while the
// order is still in From.
type StatusUpdate struct {
	OrderID            uuid.UUID
	From               OrderStatus
	To                 OrderStatus
	At                 time.Time
	PaymentMethod      *string
	PaymentTimestamp   *time.Time
	CancellationReason *string
}

// ============================================================================
// LISTING
// ============================================================================

// OrderFilter narrows ListOrders results
type OrderFilter struct {
	Status *OrderStatus
}

// Page selects a window of a listing. Number is 1-based.
type Page struct {
	Number int `form:"page"`
	Size   int `form:"page_size"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page into valid bounds
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// OrderPage is one page of an owner's orders
type OrderPage struct {
	Orders     []Order `json:"orders"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	TotalPages int     `json:"total_pages"`
}

// NewOrderPage assembles a page result
func NewOrderPage(orders []Order, total int, page Page) *OrderPage {
	pages := 0
	if page.Size > 0 {
		pages = (total + page.Size - 1) / page.Size
	}
	if orders == nil {
		orders = []Order{}
	}
	return &OrderPage{Orders: orders, Total: total, Page: page.Number, PageSize: page.Size, TotalPages: pages}
}
