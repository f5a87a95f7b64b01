package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// TrainRepository reads the timetable tables. It is the Postgres-backed
// implementation of the train lookup the booking coordinator consumes.
type TrainRepository struct {
	db *sqlx.DB
}

// NewTrainRepository creates a new TrainRepository
func NewTrainRepository(db *sqlx.DB) *TrainRepository {
	return &TrainRepository{db: db}
}

// GetTrain returns the train on a service date with its classes, or nil if it does not run
func (r *TrainRepository) GetTrain(ctx context.Context, trainNumber, serviceDate string) (*models.TrainInfo, error) {
	query := `
		SELECT train_number, to_char(service_date, 'YYYY-MM-DD') AS service_date,
		       origin, destination, departure_time, arrival_time, active
		FROM trains
		WHERE train_number = $1 AND service_date = $2`

	var train models.TrainInfo
	err := r.db.GetContext(ctx, &train, query, trainNumber, serviceDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get train %s on %s: %w", trainNumber, serviceDate, err)
	}

	classQuery := `
		SELECT seat_class, total_seats, unit_price
		FROM train_classes
		WHERE train_number = $1 AND service_date = $2
		ORDER BY seat_class`

	if err := r.db.SelectContext(ctx, &train.Classes, classQuery, trainNumber, serviceDate); err != nil {
		return nil, fmt.Errorf("failed to get classes of train %s on %s: %w", trainNumber, serviceDate, err)
	}
	return &train, nil
}

// UpsertTrain writes a train and its classes in one transaction
func (r *TrainRepository) UpsertTrain(ctx context.Context, train *models.TrainInfo) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trains (train_number, service_date, origin, destination, departure_time, arrival_time, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (train_number, service_date) DO UPDATE SET
			origin = EXCLUDED.origin,
			destination = EXCLUDED.destination,
			departure_time = EXCLUDED.departure_time,
			arrival_time = EXCLUDED.arrival_time,
			active = EXCLUDED.active`,
		train.TrainNumber, train.ServiceDate, train.Origin, train.Destination,
		train.DepartureTime, train.ArrivalTime, train.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert train: %w", err)
	}

	for _, c := range train.Classes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO train_classes (train_number, service_date, seat_class, total_seats, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (train_number, service_date, seat_class) DO UPDATE SET
				total_seats = EXCLUDED.total_seats,
				unit_price = EXCLUDED.unit_price`,
			train.TrainNumber, train.ServiceDate, c.SeatClass, c.TotalSeats, c.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to upsert class %s: %w", c.SeatClass, err)
		}
	}

	return tx.Commit()
}
