package repository

import (
	"context"
	"fmt"

	"catalogsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PromotionRepository struct {
	db *gorm.DB
}

func NewPromotionRepository(db *gorm.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// FindByRule returns every record stored under (ruleID, promotionType).
// More than one result is a data error the caller must handle.
func (r *PromotionRepository) FindByRule(ctx context.Context, ruleID int64, promotionType models.PromotionType) ([]models.PromotionRecord, error) {
	var promotions []models.PromotionRecord
	err := r.db.WithContext(ctx).
		Where("rule_id = ? AND promotion_type = ?", ruleID, promotionType).
		Order("created_at").
		Find(&promotions).Error
	return promotions, translate(err)
}

func (r *PromotionRepository) FindByID(ctx context.Context, id string) (*models.PromotionRecord, error) {
	var promotion models.PromotionRecord
	if err := r.db.WithContext(ctx).Preload("Labels").First(&promotion, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &promotion, nil
}

func (r *PromotionRepository) ListByTypes(ctx context.Context, types []models.PromotionType) ([]models.PromotionRecord, error) {
	var promotions []models.PromotionRecord
	err := r.db.WithContext(ctx).
		Where("promotion_type IN ?", types).
		Order("promotion_type, rule_id").
		Find(&promotions).Error
	return promotions, translate(err)
}

func (r *PromotionRepository) Create(ctx context.Context, promotion *models.PromotionRecord) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(promotion).Error)
}

func (r *PromotionRepository) Save(ctx context.Context, promotion *models.PromotionRecord) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Save(promotion).Error)
}

// Delete removes the promotion, its labels and every product membership.
func (r *PromotionRepository) Delete(ctx context.Context, promotion *models.PromotionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("promotion_id = ?", promotion.ID).Delete(&models.ProductPromotion{}).Error; err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		if err := tx.Where("promotion_id = ?", promotion.ID).Delete(&models.PromotionLabel{}).Error; err != nil {
			return fmt.Errorf("failed to delete labels: %w", err)
		}
		return translate(tx.Delete(promotion).Error)
	})
}

// UpsertLabel creates or replaces the label of one locale.
func (r *PromotionRepository) UpsertLabel(ctx context.Context, promotionID, langcode, label string) error {
	row := models.PromotionLabel{PromotionID: promotionID, Langcode: langcode, Label: label}
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "promotion_id"}, {Name: "langcode"}},
		DoUpdates: clause.AssignmentColumns([]string{"label"}),
	}).Create(&row).Error)
}

// AttachedSKUs returns the distinct SKUs currently attached to a promotion.
func (r *PromotionRepository) AttachedSKUs(ctx context.Context, promotionID string) ([]string, error) {
	var skus []string
	err := r.db.WithContext(ctx).
		Model(&models.ProductPromotion{}).
		Where("promotion_id = ?", promotionID).
		Distinct("sku").
		Order("sku").
		Pluck("sku", &skus).Error
	return skus, translate(err)
}

// Attach inserts memberships, refreshing the final price of rows that
// already exist. Re-attaching is a no-op apart from that refresh.
func (r *PromotionRepository) Attach(ctx context.Context, rows []models.ProductPromotion) error {
	if len(rows) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "promotion_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"final_price", "updated_at"}),
	}).Create(&rows).Error)
}

// Detach removes the memberships of productIDs. Absent rows are ignored.
func (r *PromotionRepository) Detach(ctx context.Context, promotionID string, productIDs []string) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("promotion_id = ? AND product_id IN ?", promotionID, productIDs).
		Delete(&models.ProductPromotion{})
	return res.RowsAffected, translate(res.Error)
}

// PromotionsForSKU lists the promotions attached to any variant of sku in
// the given langcode.
func (r *PromotionRepository) PromotionsForSKU(ctx context.Context, sku, langcode string) ([]models.ProductPromotion, error) {
	var rows []models.ProductPromotion
	err := r.db.WithContext(ctx).
		Where("sku = ? AND langcode = ?", sku, langcode).
		Order("promotion_id").
		Find(&rows).Error
	return rows, translate(err)
}
