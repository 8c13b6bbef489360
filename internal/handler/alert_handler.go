package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/client"
	"github.com/stockwatch/alert-composer/internal/middleware"
	"github.com/stockwatch/alert-composer/internal/service"
)

// AlertHandler handles stored alert requests
type AlertHandler struct {
	alertService *service.AlertService
	logger       *zap.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alertService *service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
		logger:       logger,
	}
}

// ListAlerts handles retrieving the alerts of the caller
// GET /api/v1/alerts
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	alerts, err := h.alertService.ListAlerts(c.Request.Context(), c.GetString(middleware.TokenKey))
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// DeleteAlert handles deleting an alert
// DELETE /api/v1/alerts/{id}
func (h *AlertHandler) DeleteAlert(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	err = h.alertService.DeleteAlert(c.Request.Context(), c.GetString(middleware.OwnerKey), c.GetString(middleware.TokenKey), id)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		h.logger.Error("Failed to delete alert", zap.Int("alertID", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to delete alert"})
		return
	}

	c.Status(http.StatusNoContent)
}
