package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/catalog"
	"github.com/stockwatch/alert-composer/internal/client"
	"github.com/stockwatch/alert-composer/internal/middleware"
	"github.com/stockwatch/alert-composer/internal/model"
)

// CatalogLoader loads the indicator catalog
type CatalogLoader interface {
	Load(ctx context.Context, token string) (*catalog.Catalog, error)
	Flush(ctx context.Context) error
}

// StockSource looks up stocks
type StockSource interface {
	ListStocks(ctx context.Context, token, search string) ([]model.Stock, error)
	GetStock(ctx context.Context, token, symbol string) (*model.Stock, error)
}

// CatalogHandler handles indicator and stock reference data requests
type CatalogHandler struct {
	loader CatalogLoader
	stocks StockSource
	logger *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(loader CatalogLoader, stocks StockSource, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		loader: loader,
		stocks: stocks,
		logger: logger,
	}
}

// GetIndicators handles retrieving the indicator catalog. refresh=true drops
// the cached copy first.
// GET /api/v1/indicators
func (h *CatalogHandler) GetIndicators(c *gin.Context) {
	if c.Query("refresh") == "true" {
		if err := h.loader.Flush(c.Request.Context()); err != nil {
			h.logger.Warn("Failed to flush indicator cache", zap.Error(err))
		}
	}

	cat, err := h.loader.Load(c.Request.Context(), c.GetString(middleware.TokenKey))
	if err != nil {
		h.logger.Error("Failed to get indicators", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch indicators"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"indicators": cat.Indicators(),
		"timeframes": model.Timeframes,
	})
}

// ListStocks handles searching stocks
// GET /api/v1/stocks
func (h *CatalogHandler) ListStocks(c *gin.Context) {
	stocks, err := h.stocks.ListStocks(c.Request.Context(), c.GetString(middleware.TokenKey), c.Query("search"))
	if err != nil {
		h.logger.Error("Failed to list stocks", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch stocks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stocks": stocks})
}

// GetStock handles retrieving one stock
// GET /api/v1/stocks/{symbol}
func (h *CatalogHandler) GetStock(c *gin.Context) {
	stock, err := h.stocks.GetStock(c.Request.Context(), c.GetString(middleware.TokenKey), c.Param("symbol"))
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
			return
		}
		h.logger.Error("Failed to get stock", zap.String("symbol", c.Param("symbol")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch stock"})
		return
	}

	c.JSON(http.StatusOK, stock)
}
