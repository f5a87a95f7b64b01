package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/middleware"
	"github.com/smarttransit/rail-reservation-backend/pkg/jwt"
)

// RouterConfig collects everything the HTTP surface is built from
type RouterConfig struct {
	Orders         *OrderHandler
	Admin          *AdminReconcilerHandler
	Health         *HealthHandler
	JWT            *jwt.Service
	AdminRole      string
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	RequestLogging bool
	Logger         *logrus.Logger
}

// NewRouter builds the gin engine with middleware and all routes
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RequestLogging {
		router.Use(middleware.RequestLogger(cfg.Logger))
	}

	// CORS middleware
	corsConfig := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", cfg.Health.Check)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWT, cfg.Logger))
	{
		cfg.Orders.RegisterRoutes(v1)

		adminRole := cfg.AdminRole
		if adminRole == "" {
			adminRole = "admin"
		}
		admin := v1.Group("/admin")
		admin.Use(middleware.RequireRole(adminRole))
		cfg.Admin.RegisterRoutes(admin)
	}

	return router
}
