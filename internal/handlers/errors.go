package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// statusForError maps the booking error taxonomy onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientInventory):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConflictRetryable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body used by every endpoint:
// {"error": "...", "message": "...", "code": "..."}
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := statusForError(err)
	code := models.ErrorCode(err)

	body := gin.H{
		"error": strings.ToLower(code),
		"code":  code,
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		_ = c.Error(err)
		body["message"] = "internal server error"
		c.JSON(status, body)
		return
	}

	body["message"] = err.Error()
	var bookingErr *models.BookingError
	if errors.As(err, &bookingErr) && bookingErr.SeatClass != "" {
		body["seat_class"] = bookingErr.SeatClass
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, body)
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
		"code":    "VALIDATION_FAILED",
	})
}
