package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/smarttransit/rail-reservation-backend/internal/config"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
)

func main() {
	var dbURLFlag string
	var keepTimetable bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&keepTimetable, "keep-timetable", true, "keep trains and train classes, clear only orders and inventory")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("Connected to database. Truncating tables...")

	truncateSQL := `TRUNCATE TABLE tickets, orders, seat_inventory RESTART IDENTITY CASCADE;`
	if !keepTimetable {
		truncateSQL = `TRUNCATE TABLE tickets, orders, seat_inventory, train_classes, trains RESTART IDENTITY CASCADE;`
	}

	if _, err := db.Exec(truncateSQL); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	fmt.Println("✅ Booking data cleared")
}
