package models

// TrainInfo is what the timetable lookup knows about a train on a service date
type TrainInfo struct {
	TrainNumber   string       `json:"train_number" db:"train_number"`
	ServiceDate   string       `json:"service_date" db:"service_date"`
	Origin        string       `json:"origin" db:"origin"`
	Destination   string       `json:"destination" db:"destination"`
	DepartureTime string       `json:"departure_time" db:"departure_time"` // HH:MM
	ArrivalTime   string       `json:"arrival_time" db:"arrival_time"`     // HH:MM
	Active        bool         `json:"active" db:"active"`
	Classes       []TrainClass `json:"classes" db:"-"`
}

// TrainClass is one seat class offered on a train/date
type TrainClass struct {
	SeatClass  string  `json:"seat_class" db:"seat_class"`
	TotalSeats int     `json:"total_seats" db:"total_seats"`
	UnitPrice  float64 `json:"unit_price" db:"unit_price"`
}

// Class returns the offered class with the given name
func (t *TrainInfo) Class(seatClass string) (TrainClass, bool) {
	for _, c := range t.Classes {
		if c.SeatClass == seatClass {
			return c, true
		}
	}
	return TrainClass{}, false
}
