package models

import (
	"fmt"
	"time"
)

// InventoryKey identifies one seat inventory row
type InventoryKey struct {
	TrainNumber string `json:"train_number" db:"train_number"`
	ServiceDate string `json:"service_date" db:"service_date"` // "2025-12-15"
	SeatClass   string `json:"seat_class" db:"seat_class"`
}

func (k InventoryKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TrainNumber, k.ServiceDate, k.SeatClass)
}

// SeatInventory holds the capacity counters for a (train, date, seat class).
// It is the single source of truth for oversell prevention.
type SeatInventory struct {
	InventoryKey
	TotalSeats     int       `json:"total_seats" db:"total_seats"`
	AvailableSeats int       `json:"available_seats" db:"available_seats"`
	UnitPrice      float64   `json:"unit_price" db:"unit_price"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ConsumedSeats is the number of seats currently held by orders
func (i SeatInventory) ConsumedSeats() int {
	return i.TotalSeats - i.AvailableSeats
}

// InventoryDrift reports an inventory row whose counter disagrees with the
// tickets of live orders. A non-empty drift means an effect was lost between
// an inventory write and the matching order write.
type InventoryDrift struct {
	InventoryKey
	TotalSeats     int `json:"total_seats" db:"total_seats"`
	AvailableSeats int `json:"available_seats" db:"available_seats"`
	LiveTickets    int `json:"live_tickets" db:"live_tickets"`
}

// Difference is positive when inventory holds more seats than live tickets account for
func (d InventoryDrift) Difference() int {
	return (d.TotalSeats - d.AvailableSeats) - d.LiveTickets
}
