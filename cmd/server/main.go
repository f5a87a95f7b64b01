package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/config"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
	"github.com/smarttransit/rail-reservation-backend/internal/handlers"
	"github.com/smarttransit/rail-reservation-backend/internal/queue"
	"github.com/smarttransit/rail-reservation-backend/internal/services"
	"github.com/smarttransit/rail-reservation-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Rail Reservation Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	store := database.NewPostgresStore(db.DB, cfg.Database.LockTimeout)

	// Timetable lookup, cached in Redis when configured
	var trains services.TrainLookup = database.NewTrainRepository(db.DB)
	redisClient := config.NewRedisClient(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
		trains = services.NewCachedTrainLookup(trains, redisClient, cfg.Booking.TrainCacheTTL, logger)
		logger.WithField("addr", cfg.Redis.Addr).Info("✓ Timetable cache enabled")
	} else if cfg.Redis.Addr != "" {
		logger.WithField("addr", cfg.Redis.Addr).Warn("Redis unreachable, running without timetable cache")
	}

	// Order events
	var publisher services.EventPublisher = services.NoopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := queue.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, order events will not be published")
		} else {
			defer rabbit.Close()
			publisher = rabbit
			logger.WithField("queue", cfg.RabbitMQ.Queue).Info("✓ Order event publisher connected")
		}
	}

	// Initialize services
	logger.Info("Initializing services...")
	clock := services.SystemClock{}
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	coordinator := services.NewBookingCoordinator(
		store,
		trains,
		services.NewSeatAllocator(),
		publisher,
		clock,
		services.CoordinatorConfig{
			MaxAttempts: cfg.Booking.MaxAttempts,
			TxTimeout:   cfg.Booking.TxTimeout,
			Location:    cfg.Booking.Location(),
		},
		logger,
	)
	lifecycle := services.NewOrderLifecycle(store, publisher, clock, services.LifecycleConfig{
		OrderTTL: cfg.Booking.OrderTTL,
	}, logger)
	reconciler := services.NewLifecycleReconciler(store, lifecycle, clock, services.ReconcilerConfig{
		Schedule:  cfg.Booking.ReconcileSchedule,
		BatchSize: cfg.Booking.ReconcileBatch,
		Workers:   cfg.Booking.ReconcileWorkers,
	}, logger)
	bookingService := services.NewBookingService(store, coordinator, lifecycle)

	// Initialize and start cron service
	cronService := services.NewCronService(logger)
	if err := reconciler.Register(cronService); err != nil {
		logger.Fatalf("Failed to schedule reconciler: %v", err)
	}
	cronService.Start()
	logger.WithField("schedule", cfg.Booking.ReconcileSchedule).Info("✓ Cron service started - order lifecycle reconciler enabled")

	router := handlers.NewRouter(handlers.RouterConfig{
		Orders:         handlers.NewOrderHandler(bookingService, logger),
		Admin:          handlers.NewAdminReconcilerHandler(reconciler, cronService, logger),
		Health:         handlers.NewHealthHandler(store, redisClient, version),
		JWT:            jwtService,
		AdminRole:      cfg.Security.AdminRole,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
		RequestLogging: cfg.Security.EnableRequestLog,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service; waits for a running reconcile to finish
	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}
