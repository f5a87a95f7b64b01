package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/smarttransit/rail-reservation-backend/internal/config"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
)

func main() {
	var dbURLFlag string
	var printOnly bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	flag.Parse()

	if printOnly {
		fmt.Print(database.Schema())
		return
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	fmt.Println("✅ Schema applied")
}
