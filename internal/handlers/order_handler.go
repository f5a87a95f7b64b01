package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/middleware"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
	"github.com/smarttransit/rail-reservation-backend/internal/services"
)

// IdempotencyKeyHeader lets clients retry order creation safely
const IdempotencyKeyHeader = "Idempotency-Key"

// OrderHandler handles order endpoints of the authenticated owner
type OrderHandler struct {
	bookingService *services.BookingService
	logger         *logrus.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(bookingService *services.BookingService, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{
		bookingService: bookingService,
		logger:         logger,
	}
}

// RegisterRoutes mounts the order endpoints on an authenticated group
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:order_id", h.GetOrder)
		orders.POST("/:order_id/cancel", h.CancelOrder)
		orders.POST("/:order_id/pay", h.MarkPaid)
	}
	rg.GET("/inventory/:train_number/:service_date/:seat_class", h.GetInventory)
}

// ============================================================================
// CREATE ORDER - POST /api/v1/orders
// ============================================================================

// CreateOrder books seats for every passenger in one all-or-nothing order.
// A repeated Idempotency-Key returns the original order with 200.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	if key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)); key != "" && req.IdempotencyKey == nil {
		req.IdempotencyKey = &key
	}

	order, created, err := h.bookingService.BookOrder(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if !created {
		c.JSON(http.StatusOK, order)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// ============================================================================
// LIST ORDERS - GET /api/v1/orders?status=&page=&page_size=
// ============================================================================

// ListOrders returns the owner's orders, newest first
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	var page models.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		respondBadRequest(c, "invalid paging parameters")
		return
	}

	var filter models.OrderFilter
	if raw := c.Query("status"); raw != "" {
		status := models.OrderStatus(strings.ToLower(raw))
		filter.Status = &status
	}

	result, err := h.bookingService.ListOrders(c.Request.Context(), userCtx.UserID, filter, page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ============================================================================
// GET ORDER - GET /api/v1/orders/:order_id
// ============================================================================

// GetOrder returns one order with its tickets
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := h.bookingService.GetOrder(c.Request.Context(), userCtx.UserID, orderID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ============================================================================
// CANCEL ORDER - POST /api/v1/orders/:order_id/cancel
// ============================================================================

// CancelOrder cancels an unpaid or paid order and releases its seats
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	// Body is optional
	var req models.CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request: "+err.Error())
			return
		}
	}

	order, err := h.bookingService.CancelOrder(c.Request.Context(), userCtx.UserID, orderID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ============================================================================
// PAY ORDER - POST /api/v1/orders/:order_id/pay
// ============================================================================

// MarkPaid records a confirmed payment for an unpaid order
func (h *OrderHandler) MarkPaid(c *gin.Context) {
	userCtx := middleware.MustGetUserContext(c)

	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var req models.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	order, err := h.bookingService.MarkPaid(c.Request.Context(), userCtx.UserID, orderID, req.PaymentMethod, req.PaymentTimestamp)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ============================================================================
// INVENTORY - GET /api/v1/inventory/:train_number/:service_date/:seat_class
// ============================================================================

// GetInventory returns current availability of one seat class
func (h *OrderHandler) GetInventory(c *gin.Context) {
	key := models.InventoryKey{
		TrainNumber: c.Param("train_number"),
		ServiceDate: c.Param("service_date"),
		SeatClass:   c.Param("seat_class"),
	}

	inv, err := h.bookingService.GetInventory(c.Request.Context(), key)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(c.Param("order_id"))
	if err != nil {
		respondBadRequest(c, "invalid order_id")
		return uuid.Nil, false
	}
	return orderID, true
}
