package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger is implemented by the order store
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports database and cache reachability
type HealthHandler struct {
	db      Pinger
	cache   *redis.Client
	version string
}

// NewHealthHandler creates a new HealthHandler. cache may be nil when the
// timetable cache is disabled.
func NewHealthHandler(db Pinger, cache *redis.Client, version string) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, version: version}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	// Check database connection
	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
			"error":    err.Error(),
		})
		return
	}

	// The cache is optional; losing it degrades lookups but not bookings
	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "healthy"
		if err := h.cache.Ping(ctx).Err(); err != nil {
			cacheStatus = "unhealthy"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"database":  "healthy",
		"cache":     cacheStatus,
		"version":   h.version,
		"timestamp": time.Now().Unix(),
	})
}
