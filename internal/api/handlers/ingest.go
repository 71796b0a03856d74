package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"catalogsync/internal/catalog"
	"catalogsync/internal/commerce"
	"catalogsync/internal/logger"
	"catalogsync/internal/pipeline"

	"github.com/gin-gonic/gin"
)

type Ingester interface {
	IngestProducts(ctx context.Context, items []commerce.Product, storeID string) (*catalog.ProductResult, error)
	IngestStock(ctx context.Context, messages []commerce.StockMessage, storeID string) *pipeline.StockResult
	IngestCategories(ctx context.Context, categories []commerce.Category, storeID string) (*catalog.CategoryResult, error)
}

// IngestHandler receives pushed catalog data. Item-level problems never
// fail the request: the caller gets 200 with the counts and the errors.
type IngestHandler struct {
	pipeline    Ingester
	storeHeader string
	logger      *logger.Logger
}

func NewIngestHandler(pipeline Ingester, storeHeader string, logger *logger.Logger) *IngestHandler {
	return &IngestHandler{
		pipeline:    pipeline,
		storeHeader: storeHeader,
		logger:      logger,
	}
}

func (h *IngestHandler) storeID(c *gin.Context) string {
	if id := c.GetHeader(h.storeHeader); id != "" {
		return id
	}
	return c.Query("store_id")
}

func (h *IngestHandler) Products(c *gin.Context) {
	var items []commerce.Product
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Body must be a JSON array of products"})
		return
	}

	result, err := h.pipeline.IngestProducts(c.Request.Context(), items, h.storeID(c))
	if err != nil {
		h.logger.Error("Product ingestion failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest products"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// Stock accepts a single stock message or an array of them.
func (h *IngestHandler) Stock(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	var messages []commerce.StockMessage
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &messages)
	} else {
		var msg commerce.StockMessage
		err = json.Unmarshal(trimmed, &msg)
		messages = append(messages, msg)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Body must be a stock message or an array of them"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": h.pipeline.IngestStock(c.Request.Context(), messages, h.storeID(c))})
}

func (h *IngestHandler) Categories(c *gin.Context) {
	var categories []commerce.Category
	if err := c.ShouldBindJSON(&categories); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Body must be a JSON array of categories"})
		return
	}

	result, err := h.pipeline.IngestCategories(c.Request.Context(), categories, h.storeID(c))
	if err != nil {
		h.logger.Error("Category ingestion failed: %v", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
