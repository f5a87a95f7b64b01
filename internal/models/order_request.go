package models

import (
	"strings"
	"time"
)

// MaxTicketsPerOrder limits the party size of a single booking
const MaxTicketsPerOrder = 5

// FareClassAdult is applied when a ticket request names no fare class
const FareClassAdult = "adult"

// TrainRequest identifies the journey being booked
type TrainRequest struct {
	TrainNumber string `json:"train_number" binding:"required"`
	ServiceDate string `json:"service_date" binding:"required"` // YYYY-MM-DD
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// Passenger is the identity snapshot copied onto a ticket
type Passenger struct {
	Name       string `json:"name" binding:"required"`
	IDDocument string `json:"id_document" binding:"required"`
	Phone      string `json:"phone,omitempty"`
}

// TicketRequest asks for one seat for the passenger at PassengerIndex
type TicketRequest struct {
	PassengerIndex  int    `json:"passenger_index"`
	SeatClass       string `json:"seat_class" binding:"required"`
	FareClass       string `json:"fare_class,omitempty"`
	PreferredColumn string `json:"preferred_column,omitempty"` // "A".."F", "window" or "aisle"
}

// CreateOrderRequest is the input of the booking coordinator
type CreateOrderRequest struct {
	Train          TrainRequest    `json:"train" binding:"required"`
	Passengers     []Passenger     `json:"passengers" binding:"required,min=1"`
	Tickets        []TicketRequest `json:"tickets" binding:"required,min=1"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
}

// Validate checks the request shape. It never touches storage.
func (r *CreateOrderRequest) Validate() error {
	if strings.TrimSpace(r.Train.TrainNumber) == "" {
		return NewValidationError("train_number is required")
	}
	if _, err := time.Parse("2006-01-02", r.Train.ServiceDate); err != nil {
		return NewValidationError("service_date must be YYYY-MM-DD, got %q", r.Train.ServiceDate)
	}
	if len(r.Passengers) == 0 {
		return NewValidationError("at least one passenger is required")
	}
	if len(r.Tickets) != len(r.Passengers) {
		return NewValidationError("expected one ticket per passenger (passengers: %d, tickets: %d)",
			len(r.Passengers), len(r.Tickets))
	}
	if len(r.Tickets) > MaxTicketsPerOrder {
		return NewValidationError("at most %d tickets per order", MaxTicketsPerOrder)
	}

	for i, p := range r.Passengers {
		if strings.TrimSpace(p.Name) == "" {
			return NewValidationError("passengers[%d].name is required", i)
		}
		if strings.TrimSpace(p.IDDocument) == "" {
			return NewValidationError("passengers[%d].id_document is required", i)
		}
	}

	seen := make(map[int]bool, len(r.Tickets))
	for i, t := range r.Tickets {
		if t.PassengerIndex < 0 || t.PassengerIndex >= len(r.Passengers) {
			return NewValidationError("tickets[%d].passenger_index %d out of range", i, t.PassengerIndex)
		}
		if seen[t.PassengerIndex] {
			return NewValidationError("passenger %d has more than one ticket", t.PassengerIndex)
		}
		seen[t.PassengerIndex] = true

		if strings.TrimSpace(t.SeatClass) == "" {
			return NewValidationError("tickets[%d].seat_class is required", i)
		}
		if !IsValidPreference(t.PreferredColumn) {
			return NewValidationError("tickets[%d].preferred_column %q is not a seat column", i, t.PreferredColumn)
		}
	}

	if r.IdempotencyKey != nil && len(*r.IdempotencyKey) > 128 {
		return NewValidationError("idempotency_key must be at most 128 characters")
	}
	return nil
}

// TicketsByClass groups ticket request indexes by seat class, preserving
// request order inside each group.
func (r *CreateOrderRequest) TicketsByClass() map[string][]int {
	groups := make(map[string][]int)
	for i, t := range r.Tickets {
		groups[t.SeatClass] = append(groups[t.SeatClass], i)
	}
	return groups
}

// FareClassOrDefault returns the fare class to record on the ticket
func (t TicketRequest) FareClassOrDefault() string {
	if t.FareClass == "" {
		return FareClassAdult
	}
	return t.FareClass
}

// MarkPaidRequest confirms payment of an order
type MarkPaidRequest struct {
	PaymentMethod    string     `json:"payment_method" binding:"required"`
	PaymentTimestamp *time.Time `json:"payment_timestamp,omitempty"`
}

// CancelOrderRequest optionally carries a reason
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}
