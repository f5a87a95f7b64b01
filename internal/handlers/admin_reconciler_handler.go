package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/services"
)

// AdminReconcilerHandler exposes the lifecycle reconciler to operators
type AdminReconcilerHandler struct {
	reconciler  *services.LifecycleReconciler
	cronService *services.CronService
	logger      *logrus.Logger
}

// NewAdminReconcilerHandler creates a new AdminReconcilerHandler. cronService may be nil.
func NewAdminReconcilerHandler(
	reconciler *services.LifecycleReconciler,
	cronService *services.CronService,
	logger *logrus.Logger,
) *AdminReconcilerHandler {
	return &AdminReconcilerHandler{
		reconciler:  reconciler,
		cronService: cronService,
		logger:      logger,
	}
}

// RegisterRoutes mounts the admin endpoints on an admin-only group
func (h *AdminReconcilerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/reconciler", h.GetStats)
	rg.POST("/reconciler/run", h.RunNow)
}

// GetStats handles GET /api/v1/admin/reconciler
func (h *AdminReconcilerHandler) GetStats(c *gin.Context) {
	response := gin.H{
		"reconciler": h.reconciler.Stats(),
	}
	if h.cronService != nil {
		response["scheduler"] = h.cronService.GetJobStatus()
	}
	c.JSON(http.StatusOK, response)
}

// RunNow handles POST /api/v1/admin/reconciler/run
func (h *AdminReconcilerHandler) RunNow(c *gin.Context) {
	userCtx, _ := c.Get("user_id")
	h.logger.WithField("user_id", userCtx).Info("Manual reconcile run requested")

	report, err := h.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrReconcileInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "reconcile_in_progress",
				"message": err.Error(),
				"code":    "RECONCILE_IN_PROGRESS",
			})
			return
		}
		if report == nil {
			respondError(c, h.logger, err)
			return
		}
		// Partial run: individual pass failures are listed in the report
		h.logger.WithError(err).Warn("Manual reconcile run finished with errors")
	}

	c.JSON(http.StatusOK, report)
}
