package handlers

import (
	"context"
	"errors"
	"net/http"

	"catalogsync/internal/catalog/product"
	"catalogsync/internal/catalog/stock"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"

	"github.com/gin-gonic/gin"
)

type StockReader interface {
	GetStockQuantity(ctx context.Context, sku string) (int, error)
	IsProductInStock(ctx context.Context, sku string) (bool, error)
}

type DisplayResolver interface {
	ResolveDisplay(ctx context.Context, cache *product.RunCache, sku, langcode string) (*models.DisplayRecord, error)
	BuildCartItem(ctx context.Context, cache *product.RunCache, sku, langcode string, qty int, selectedSKU string) (*product.CartItem, error)
}

type LocaleResolver interface {
	Langcode(ctx context.Context, storeID string) (string, bool)
	DefaultLangcode() string
}

type ProductHandler struct {
	stock       StockReader
	displays    DisplayResolver
	locales     LocaleResolver
	storeHeader string
	logger      *logger.Logger
}

func NewProductHandler(stock StockReader, displays DisplayResolver, locales LocaleResolver, storeHeader string, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		stock:       stock,
		displays:    displays,
		locales:     locales,
		storeHeader: storeHeader,
		logger:      logger,
	}
}

// langcode picks the request locale: the store header, then ?langcode=,
// then the default.
func (h *ProductHandler) langcode(c *gin.Context) (string, bool) {
	if storeID := c.GetHeader(h.storeHeader); storeID != "" {
		return h.locales.Langcode(c.Request.Context(), storeID)
	}
	if l := c.Query("langcode"); l != "" {
		return l, true
	}
	return h.locales.DefaultLangcode(), true
}

func (h *ProductHandler) Stock(c *gin.Context) {
	sku := c.Param("sku")

	qty, err := h.stock.GetStockQuantity(c.Request.Context(), sku)
	if err == nil {
		var inStock bool
		inStock, err = h.stock.IsProductInStock(c.Request.Context(), sku)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{"sku": sku, "quantity": qty, "in_stock": inStock}})
			return
		}
	}

	if errors.Is(err, stock.ErrMissingSKU) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("Failed to read stock of %s: %v", sku, err)
	c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read stock"})
}

func (h *ProductHandler) Display(c *gin.Context) {
	sku := c.Param("sku")
	langcode, ok := h.langcode(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown store"})
		return
	}

	display, err := h.displays.ResolveDisplay(c.Request.Context(), nil, sku, langcode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.logger.Error("Failed to resolve display of %s: %v", sku, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve display"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": display})
}

type cartRequest struct {
	Qty         int    `json:"qty" binding:"required,min=1"`
	SelectedSKU string `json:"selected_sku"`
}

func (h *ProductHandler) Cart(c *gin.Context) {
	sku := c.Param("sku")
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	langcode, ok := h.langcode(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown store"})
		return
	}

	item, err := h.displays.BuildCartItem(c.Request.Context(), nil, sku, langcode, req.Qty, req.SelectedSKU)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		case errors.Is(err, product.ErrInvalidQuantity), errors.Is(err, product.ErrMissingVariant):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to build cart item for %s: %v", sku, err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}
