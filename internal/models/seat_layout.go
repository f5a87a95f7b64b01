package models

import (
	"fmt"
	"strings"
)

// Seat classes sold by the booking engine
const (
	SeatClassBusiness = "business"
	SeatClassFirst    = "first"
	SeatClassSecond   = "second"
)

// Seat preference aliases accepted in place of a column letter
const (
	PreferenceWindow = "window"
	PreferenceAisle  = "aisle"
)

// SeatLayout describes the physical arrangement of one seat class inside a car.
// Seat identifiers are "{car:2}{row:2}{column}", e.g. "0312F".
type SeatLayout struct {
	SeatClass  string
	Columns    []string
	RowsPerCar int
	AisleAfter int // index of the last column before the aisle
}

var seatLayouts = map[string]SeatLayout{
	SeatClassBusiness: {SeatClass: SeatClassBusiness, Columns: []string{"A", "C", "D", "F"}, RowsPerCar: 6, AisleAfter: 1},
	SeatClassFirst:    {SeatClass: SeatClassFirst, Columns: []string{"A", "C", "D", "F"}, RowsPerCar: 12, AisleAfter: 1},
	SeatClassSecond:   {SeatClass: SeatClassSecond, Columns: []string{"A", "B", "C", "D", "F"}, RowsPerCar: 18, AisleAfter: 2},
}

// LayoutForClass returns the layout of a seat class. Unknown classes use the
// second-class layout.
func LayoutForClass(seatClass string) SeatLayout {
	if layout, ok := seatLayouts[normalizeSeatClass(seatClass)]; ok {
		return layout
	}
	layout := seatLayouts[SeatClassSecond]
	layout.SeatClass = seatClass
	return layout
}

// normalizeSeatClass accepts "second-class" as well as "second"
func normalizeSeatClass(seatClass string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(seatClass)), "-class")
}

// SeatsPerCar returns the capacity of a single car
func (l SeatLayout) SeatsPerCar() int {
	return l.RowsPerCar * len(l.Columns)
}

// CarsFor returns how many cars are needed to hold totalSeats
func (l SeatLayout) CarsFor(totalSeats int) int {
	perCar := l.SeatsPerCar()
	if perCar == 0 || totalSeats <= 0 {
		return 0
	}
	return (totalSeats + perCar - 1) / perCar
}

// SeatNumber formats a seat identifier
func (l SeatLayout) SeatNumber(car, row int, column string) string {
	return fmt.Sprintf("%02d%02d%s", car, row, column)
}

// SeatAt maps a zero-based position in car -> row -> column order to a seat
func (l SeatLayout) SeatAt(position int) (car, row int, column string) {
	perCar := l.SeatsPerCar()
	car = position/perCar + 1
	rest := position % perCar
	row = rest/len(l.Columns) + 1
	column = l.Columns[rest%len(l.Columns)]
	return car, row, column
}

// ResolvePreference turns a passenger preference into the set of columns that
// satisfy it. An empty or unusable preference resolves to nil.
func (l SeatLayout) ResolvePreference(preference string) []string {
	pref := strings.ToUpper(strings.TrimSpace(preference))
	switch pref {
	case "":
		return nil
	case strings.ToUpper(PreferenceWindow):
		return []string{l.Columns[0], l.Columns[len(l.Columns)-1]}
	case strings.ToUpper(PreferenceAisle):
		if l.AisleAfter+1 >= len(l.Columns) {
			return nil
		}
		return []string{l.Columns[l.AisleAfter], l.Columns[l.AisleAfter+1]}
	}
	for _, col := range l.Columns {
		if col == pref {
			return []string{col}
		}
	}
	return nil
}

// IsValidPreference reports whether a preference is syntactically acceptable.
// Column letters a class does not have are accepted and simply not honoured.
func IsValidPreference(preference string) bool {
	pref := strings.ToLower(strings.TrimSpace(preference))
	switch pref {
	case "", PreferenceWindow, PreferenceAisle:
		return true
	}
	return len(pref) == 1 && pref[0] >= 'a' && pref[0] <= 'f'
}
