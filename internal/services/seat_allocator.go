package services

import (
	"sort"

	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// AllocationRequest asks for one seat per entry of Preferences. Preferences[i]
// is passenger i's column wish ("", a column letter, "window" or "aisle").
type AllocationRequest struct {
	SeatClass   string
	TotalSeats  int
	Occupied    []string
	Preferences []string
}

// SeatAllocator assigns concrete seats to a party, keeping it together when
// capacity allows. It is deterministic: the same request always yields the
// same seats.
type SeatAllocator struct{}

// NewSeatAllocator creates a SeatAllocator
func NewSeatAllocator() *SeatAllocator {
	return &SeatAllocator{}
}

type seat struct {
	id  string
	car int
	row int
	col string
}

// Allocate returns one seat id per passenger, in passenger order. Policy:
//  1. one row with enough free seats, the one honouring most preferences
//  2. two adjacent rows of one car
//  3. any single car
//  4. any free seats, in car/row/column order
func (a *SeatAllocator) Allocate(req AllocationRequest) ([]string, error) {
	n := len(req.Preferences)
	if n == 0 {
		return nil, nil
	}

	layout := models.LayoutForClass(req.SeatClass)
	cars := freeSeatsByCarRow(layout, req.TotalSeats, req.Occupied)

	wants := make([][]string, n)
	for i, p := range req.Preferences {
		wants[i] = layout.ResolvePreference(p)
	}

	// 1. single row
	var rows [][]seat
	for _, car := range cars {
		rows = append(rows, car...)
	}
	if group := bestGroup(rows, wants); group != nil {
		return assign(group, wants), nil
	}

	// 2. two adjacent rows inside a car
	var pairs [][]seat
	for _, car := range cars {
		for r := 0; r+1 < len(car); r++ {
			if len(car[r]) == 0 || len(car[r+1]) == 0 || car[r+1][0].row != car[r][0].row+1 {
				continue
			}
			pair := make([]seat, 0, len(car[r])+len(car[r+1]))
			pair = append(pair, car[r]...)
			pair = append(pair, car[r+1]...)
			pairs = append(pairs, pair)
		}
	}
	if group := bestGroup(pairs, wants); group != nil {
		return assign(group, wants), nil
	}

	// 3. single car
	var whole [][]seat
	var all []seat
	for _, car := range cars {
		var free []seat
		for _, row := range car {
			free = append(free, row...)
		}
		whole = append(whole, free)
		all = append(all, free...)
	}
	if group := bestGroup(whole, wants); group != nil {
		return assign(group, wants), nil
	}

	// 4. anywhere
	if len(all) < n {
		return nil, models.NewInsufficientInventoryError(req.SeatClass, n, len(all))
	}
	return assign(all, wants), nil
}

// freeSeatsByCarRow lists the free seats of the first totalSeats positions,
// grouped by car and row. Rows without free seats are omitted.
func freeSeatsByCarRow(layout models.SeatLayout, totalSeats int, occupied []string) [][][]seat {
	taken := make(map[string]bool, len(occupied))
	for _, id := range occupied {
		taken[id] = true
	}

	var cars [][][]seat
	lastCar, lastRow := 0, 0
	for pos := 0; pos < totalSeats; pos++ {
		car, row, col := layout.SeatAt(pos)
		id := layout.SeatNumber(car, row, col)
		if taken[id] {
			continue
		}
		if car != lastCar {
			cars = append(cars, nil)
			lastCar, lastRow = car, 0
		}
		c := len(cars) - 1
		if row != lastRow {
			cars[c] = append(cars[c], nil)
			lastRow = row
		}
		r := len(cars[c]) - 1
		cars[c][r] = append(cars[c][r], seat{id: id, car: car, row: row, col: col})
	}
	return cars
}

// bestGroup returns the first group with room for the whole party that
// satisfies the most preferences, or nil if none has room.
func bestGroup(groups [][]seat, wants [][]string) []seat {
	var best []seat
	bestScore := -1
	for _, g := range groups {
		if len(g) < len(wants) {
			continue
		}
		if score := preferenceScore(g, wants); score > bestScore {
			best, bestScore = g, score
		}
	}
	return best
}

func preferenceScore(group []seat, wants [][]string) int {
	_, matched := matchPreferences(group, wants)
	return matched
}

// matchPreferences finds a maximum matching between passengers and seats in
// their wanted columns. Passengers with fewer acceptable columns go first and
// take the first free fitting seat; a seat already taken is only reassigned
// along an augmenting path. It returns the chosen index into group per
// passenger (-1 when unmatched) and the number matched.
func matchPreferences(group []seat, wants [][]string) ([]int, int) {
	chosen := make([]int, len(wants))
	owner := make([]int, len(group))
	for i := range owner {
		owner[i] = -1
	}

	order := make([]int, 0, len(wants))
	for p, cols := range wants {
		chosen[p] = -1
		if len(cols) > 0 {
			order = append(order, p)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(wants[order[a]]) < len(wants[order[b]])
	})

	var visited []bool
	var augment func(p int) bool
	augment = func(p int) bool {
		for i, s := range group {
			if visited[i] || !containsColumn(wants[p], s.col) {
				continue
			}
			visited[i] = true
			if owner[i] < 0 || augment(owner[i]) {
				owner[i] = p
				chosen[p] = i
				return true
			}
		}
		return false
	}

	matched := 0
	for _, p := range order {
		for i, s := range group {
			if owner[i] < 0 && containsColumn(wants[p], s.col) {
				owner[i] = p
				chosen[p] = i
				break
			}
		}
		if chosen[p] < 0 {
			visited = make([]bool, len(group))
			if !augment(p) {
				continue
			}
		}
		matched++
	}
	return chosen, matched
}

// assign maps passengers onto group: preferences first, then the remaining
// passengers take the remaining seats in order.
func assign(group []seat, wants [][]string) []string {
	chosen, _ := matchPreferences(group, wants)
	used := make([]bool, len(group))
	for _, i := range chosen {
		if i >= 0 {
			used[i] = true
		}
	}

	next := 0
	seats := make([]string, len(wants))
	for p, i := range chosen {
		if i < 0 {
			for used[next] {
				next++
			}
			i = next
			used[i] = true
		}
		seats[p] = group[i].id
	}
	return seats
}

func containsColumn(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
