package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/config"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
	"github.com/smarttransit/rail-reservation-backend/internal/services"
)

type timetableWriter interface {
	UpsertTrain(ctx context.Context, train *models.TrainInfo) error
}

type trainCacheInvalidator interface {
	Invalidate(ctx context.Context, trainNumber, serviceDate string) error
}

// writeTimetable stores the train and drops any cached copy so the API sees
// the new state (for example -inactive) straight away.
func writeTimetable(ctx context.Context, writer timetableWriter, cache trainCacheInvalidator, train *models.TrainInfo) error {
	if err := writer.UpsertTrain(ctx, train); err != nil {
		return fmt.Errorf("failed to write timetable: %w", err)
	}
	if cache == nil {
		return nil
	}
	if err := cache.Invalidate(ctx, train.TrainNumber, train.ServiceDate); err != nil {
		return err
	}
	return nil
}

// classFlags collects repeated -class seat-class:total:price values
type classFlags []models.TrainClass

func (f *classFlags) String() string {
	parts := make([]string, len(*f))
	for i, c := range *f {
		parts[i] = fmt.Sprintf("%s:%d:%g", c.SeatClass, c.TotalSeats, c.UnitPrice)
	}
	return strings.Join(parts, ",")
}

func (f *classFlags) Set(value string) error {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return fmt.Errorf("expected seat-class:total:price, got %q", value)
	}
	total, err := strconv.Atoi(parts[1])
	if err != nil || total < 0 {
		return fmt.Errorf("invalid total seats %q", parts[1])
	}
	price, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || price < 0 {
		return fmt.Errorf("invalid unit price %q", parts[2])
	}
	*f = append(*f, models.TrainClass{SeatClass: parts[0], TotalSeats: total, UnitPrice: price})
	return nil
}

func redisDB() int {
	db, err := strconv.Atoi(os.Getenv("REDIS_DB"))
	if err != nil {
		return 0
	}
	return db
}

func main() {
	var (
		dbURLFlag   string
		train       models.TrainInfo
		classes     classFlags
		inactive    bool
		timetableOn bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&train.TrainNumber, "train", "", "train number, e.g. G101")
	flag.StringVar(&train.ServiceDate, "date", "", "service date YYYY-MM-DD")
	flag.StringVar(&train.Origin, "origin", "", "origin station")
	flag.StringVar(&train.Destination, "destination", "", "destination station")
	flag.StringVar(&train.DepartureTime, "depart", "08:00", "departure time HH:MM")
	flag.StringVar(&train.ArrivalTime, "arrive", "", "arrival time HH:MM")
	flag.BoolVar(&inactive, "inactive", false, "mark the train as not running")
	flag.BoolVar(&timetableOn, "timetable", true, "also write the train to the timetable tables")
	flag.Var(&classes, "class", "seat-class:total:price (repeatable)")
	flag.Parse()

	if train.TrainNumber == "" || train.ServiceDate == "" || len(classes) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if _, err := time.Parse("2006-01-02", train.ServiceDate); err != nil {
		log.Fatalf("invalid -date %q: %v", train.ServiceDate, err)
	}
	train.Active = !inactive
	train.Classes = classes

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if timetableOn {
		repo := database.NewTrainRepository(db.DB)
		var cache trainCacheInvalidator
		redisClient := config.NewRedisClient(config.RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB(),
		})
		if redisClient != nil {
			defer redisClient.Close()
			cache = services.NewCachedTrainLookup(repo, redisClient, 0, logrus.StandardLogger())
		}
		if err := writeTimetable(ctx, repo, cache, &train); err != nil {
			log.Fatalf("%v", err)
		}
	}

	// Existing inventory rows are left untouched
	store := database.NewPostgresStore(db.DB, 2*time.Second)
	err = store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		for _, c := range classes {
			inv := models.SeatInventory{
				InventoryKey: models.InventoryKey{
					TrainNumber: train.TrainNumber,
					ServiceDate: train.ServiceDate,
					SeatClass:   c.SeatClass,
				},
				TotalSeats:     c.TotalSeats,
				AvailableSeats: c.TotalSeats,
				UnitPrice:      c.UnitPrice,
			}
			if err := tx.EnsureInventory(ctx, inv); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("failed to seed inventory: %v", err)
	}

	for _, c := range classes {
		inv, err := store.GetInventory(ctx, models.InventoryKey{
			TrainNumber: train.TrainNumber, ServiceDate: train.ServiceDate, SeatClass: c.SeatClass,
		})
		if err != nil || inv == nil {
			log.Fatalf("failed to read back %s inventory: %v", c.SeatClass, err)
		}
		fmt.Printf("%s %s %-14s total=%d available=%d price=%.2f\n",
			inv.TrainNumber, inv.ServiceDate, inv.SeatClass, inv.TotalSeats, inv.AvailableSeats, inv.UnitPrice)
	}
	fmt.Println("✅ Inventory seeded")
}
