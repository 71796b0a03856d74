package handlers

import (
	"context"
	"net/http"

	"catalogsync/internal/catalog"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/gin-gonic/gin"
)

type Syncer interface {
	PullProducts(ctx context.Context, storeIDs []string, full bool) (map[string]*catalog.ProductResult, error)
	SyncPromotions(ctx context.Context, types []models.PromotionType) (*catalog.PromotionResult, error)
	SyncCategoryTree(ctx context.Context) (*catalog.TreeResult, error)
}

// SyncHandler triggers pull syncs against the commerce backend. Each call
// runs to completion before responding.
type SyncHandler struct {
	pipeline Syncer
	logger   *logger.Logger
}

func NewSyncHandler(pipeline Syncer, logger *logger.Logger) *SyncHandler {
	return &SyncHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

func (h *SyncHandler) Products(c *gin.Context) {
	full := c.DefaultQuery("full", "true") == "true"
	results, err := h.pipeline.PullProducts(c.Request.Context(), c.QueryArray("store"), full)
	if err != nil {
		h.logger.Error("Product sync failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync products", "data": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": results})
}

func (h *SyncHandler) Promotions(c *gin.Context) {
	var types []models.PromotionType
	for _, t := range c.QueryArray("type") {
		pt := models.PromotionType(t)
		if !pt.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown promotion type " + t})
			return
		}
		types = append(types, pt)
	}

	result, err := h.pipeline.SyncPromotions(c.Request.Context(), types)
	if err != nil {
		h.logger.Error("Promotion sync failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *SyncHandler) Categories(c *gin.Context) {
	result, err := h.pipeline.SyncCategoryTree(c.Request.Context())
	if err != nil {
		h.logger.Error("Category sync failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
