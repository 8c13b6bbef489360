package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/metrics"
	"github.com/stockwatch/alert-composer/internal/middleware"
)

// SetupRouter wires every route of the composer API
func SetupRouter(
	formHandler *FormHandler,
	alertHandler *AlertHandler,
	catalogHandler *CatalogHandler,
	limiter *middleware.RateLimiter,
	jwtSecret string,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(jwtSecret, logger))
	{
		v1.GET("/indicators", catalogHandler.GetIndicators)
		v1.GET("/stocks", catalogHandler.ListStocks)
		v1.GET("/stocks/:symbol", catalogHandler.GetStock)

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", alertHandler.ListAlerts)
			alerts.DELETE("/:id", alertHandler.DeleteAlert)
			alerts.POST("/:id/form", formHandler.EditAlert)
		}

		forms := v1.Group("/forms")
		{
			forms.POST("", formHandler.CreateForm)
			forms.GET("/:id", formHandler.GetForm)
			forms.DELETE("/:id", formHandler.DeleteForm)
			forms.PUT("/:id/alert-type", formHandler.SetAlertType)
			forms.PATCH("/:id/fields", formHandler.UpdateFields)

			conditions := forms.Group("/:id/conditions")
			conditions.POST("", formHandler.AddCondition)
			conditions.PATCH("/:cid", formHandler.UpdateCondition)
			conditions.DELETE("/:cid", formHandler.RemoveCondition)
			conditions.PATCH("/:cid/parameters", formHandler.UpdateParameters)
			conditions.PATCH("/:cid/value-parameters", formHandler.UpdateValueParameters)

			// Submissions reach the backend and are rate limited per owner
			forms.POST("/:id/submit", middleware.RateLimit(limiter), formHandler.Submit)
		}
	}

	return router
}
