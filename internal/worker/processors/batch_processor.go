package processors

import (
	"context"
	"errors"
	"fmt"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/queue"
	"catalogsync/internal/repository"

	"github.com/shopspring/decimal"
)

type PromotionStore interface {
	FindByID(ctx context.Context, id string) (*models.PromotionRecord, error)
	Attach(ctx context.Context, rows []models.ProductPromotion) error
	Detach(ctx context.Context, promotionID string, productIDs []string) (int64, error)
}

type ProductStore interface {
	FindAllBySKU(ctx context.Context, sku string) ([]models.ProductRecord, error)
}

// BatchStats counts what one batch did.
type BatchStats struct {
	Applied    int
	Unresolved int
}

// BatchProcessor applies attach and detach work items to the product
// promotion memberships. Both operations are safe to apply twice.
type BatchProcessor struct {
	promotions PromotionStore
	products   ProductStore
	logger     *logger.Logger
}

func NewBatchProcessor(promotions PromotionStore, products ProductStore, logger *logger.Logger) *BatchProcessor {
	return &BatchProcessor{
		promotions: promotions,
		products:   products,
		logger:     logger,
	}
}

// Process dispatches on the item's operation.
func (bp *BatchProcessor) Process(ctx context.Context, item queue.WorkItem) (BatchStats, error) {
	if err := item.Validate(); err != nil {
		return BatchStats{}, err
	}
	if item.Operation == queue.OperationDetach {
		return bp.ProcessDetachBatch(ctx, item)
	}
	return bp.ProcessAttachBatch(ctx, item)
}

// ProcessAttachBatch attaches every locale variant of each SKU. Unknown
// SKUs are logged and skipped; a missing promotion makes the batch a no-op.
func (bp *BatchProcessor) ProcessAttachBatch(ctx context.Context, item queue.WorkItem) (BatchStats, error) {
	var stats BatchStats

	promotion, err := bp.promotions.FindByID(ctx, item.PromotionID)
	if errors.Is(err, repository.ErrNotFound) {
		bp.logger.Warn("Promotion %s no longer exists, dropping attach batch of %d SKUs", item.PromotionID, len(item.SKUs))
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to load promotion %s: %w", item.PromotionID, err)
	}

	var rows []models.ProductPromotion
	for _, sku := range item.SKUs {
		variants, err := bp.products.FindAllBySKU(ctx, sku)
		if err != nil {
			return stats, fmt.Errorf("failed to load product %s: %w", sku, err)
		}
		if len(variants) == 0 {
			bp.logger.Warn("Promotion %d: product %s not found, skipping", promotion.RuleID, sku)
			stats.Unresolved++
			continue
		}

		var finalPrice decimal.NullDecimal
		if promotion.Type == models.PromotionTypeCategory {
			if data, ok := item.ExtraData[sku]; ok && data.FinalPrice != nil {
				finalPrice = decimal.NewNullDecimal(*data.FinalPrice)
			}
		}
		for _, v := range variants {
			rows = append(rows, models.ProductPromotion{
				ProductID:   v.ID,
				PromotionID: promotion.ID,
				SKU:         v.SKU,
				Langcode:    v.Langcode,
				FinalPrice:  finalPrice,
			})
		}
		stats.Applied++
	}

	if err := bp.promotions.Attach(ctx, rows); err != nil {
		return stats, fmt.Errorf("failed to attach promotion %s: %w", item.PromotionID, err)
	}
	bp.logger.Debug("Attached promotion %d to %d SKUs (%d rows)", promotion.RuleID, stats.Applied, len(rows))
	return stats, nil
}

// ProcessDetachBatch removes the memberships of every locale variant of
// each SKU. Removing an absent membership is a no-op.
func (bp *BatchProcessor) ProcessDetachBatch(ctx context.Context, item queue.WorkItem) (BatchStats, error) {
	var stats BatchStats

	var productIDs []string
	for _, sku := range item.SKUs {
		variants, err := bp.products.FindAllBySKU(ctx, sku)
		if err != nil {
			return stats, fmt.Errorf("failed to load product %s: %w", sku, err)
		}
		if len(variants) == 0 {
			bp.logger.Debug("Promotion %s: product %s not found, nothing to detach", item.PromotionID, sku)
			stats.Unresolved++
			continue
		}
		for _, v := range variants {
			productIDs = append(productIDs, v.ID)
		}
		stats.Applied++
	}

	removed, err := bp.promotions.Detach(ctx, item.PromotionID, productIDs)
	if err != nil {
		return stats, fmt.Errorf("failed to detach promotion %s: %w", item.PromotionID, err)
	}
	bp.logger.Debug("Detached promotion %s from %d SKUs (%d rows removed)", item.PromotionID, stats.Applied, removed)
	return stats, nil
}
