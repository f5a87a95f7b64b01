package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/utils"
)

// RequestLogger logs one structured line per request with client details
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		client := utils.ParseUserAgent(utils.GetUserAgent(c))
		fields := logrus.Fields{
			"status":      c.Writer.Status(),
			"method":      c.Request.Method,
			"path":        path,
			"query":       query,
			"ip":          utils.GetRealIP(c),
			"latency_ms":  time.Since(start).Milliseconds(),
			"device_type": client.DeviceType,
			"os":          client.OS,
			"browser":     client.Browser,
			"has_auth":    c.GetHeader("Authorization") != "",
		}
		if client.IsBot {
			fields["is_bot"] = true
		}
		if userID, exists := c.Get("user_id"); exists {
			fields["user_id"] = userID
		}
		if key := c.GetHeader("Idempotency-Key"); key != "" {
			fields["idempotency_key"] = key
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}
