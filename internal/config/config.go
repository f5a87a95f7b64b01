package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Redis configuration (timetable cache)
	Redis RedisConfig

	// RabbitMQ configuration (order events)
	RabbitMQ RabbitMQConfig

	// Booking engine configuration
	Booking BookingConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	LockTimeout        time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// RedisConfig holds the timetable cache connection. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig holds the order event publisher settings. An empty URL disables publishing.
type RabbitMQConfig struct {
	URL   string
	Queue string
}

// BookingConfig holds reservation and lifecycle settings
type BookingConfig struct {
	OrderTTL          time.Duration // unpaid orders older than this are expired
	ReconcileSchedule string        // cron spec for the lifecycle reconciler
	ReconcileBatch    int           // max orders per pass
	ReconcileWorkers  int           // concurrent order updates per pass
	MaxAttempts       int           // attempts per booking on transaction conflicts
	TxTimeout         time.Duration // bound on one booking unit of work
	Timezone          string        // zone of service dates and departure times
	TrainCacheTTL     time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRequestLog bool
	AdminRole        string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 20),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			LockTimeout:        getEnvAsDuration("DATABASE_LOCK_TIMEOUT", 2*time.Second),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "rail-reservation"),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:   getEnv("RABBITMQ_URL", ""),
			Queue: getEnv("RABBITMQ_ORDER_QUEUE", "order_events"),
		},
		Booking: BookingConfig{
			OrderTTL:          getEnvAsDuration("ORDER_TTL", 30*time.Minute),
			ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 30s"),
			ReconcileBatch:    getEnvAsInt("RECONCILE_BATCH_SIZE", 200),
			ReconcileWorkers:  getEnvAsInt("RECONCILE_WORKERS", 8),
			MaxAttempts:       getEnvAsInt("BOOKING_MAX_ATTEMPTS", 3),
			TxTimeout:         getEnvAsDuration("BOOKING_TX_TIMEOUT", 5*time.Second),
			Timezone:          getEnv("BOOKING_TIMEZONE", "UTC"),
			TrainCacheTTL:     getEnvAsDuration("TRAIN_CACHE_TTL", 5*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
		Security: SecurityConfig{
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			AdminRole:        getEnv("ADMIN_ROLE", "admin"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.OrderTTL <= 0 {
		return fmt.Errorf("ORDER_TTL must be positive")
	}

	if c.Booking.MaxAttempts < 1 {
		return fmt.Errorf("BOOKING_MAX_ATTEMPTS must be at least 1")
	}

	if c.Booking.TxTimeout <= 0 {
		return fmt.Errorf("BOOKING_TX_TIMEOUT must be positive")
	}

	if c.Booking.ReconcileBatch < 1 {
		return fmt.Errorf("RECONCILE_BATCH_SIZE must be at least 1")
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	return nil
}

// Location returns the zone service dates are interpreted in
func (c BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s", "30m") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
