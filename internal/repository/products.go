package repository

import (
	"context"
	"fmt"

	"catalogsync/internal/models"

	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) FindBySKU(ctx context.Context, sku, langcode string) (*models.ProductRecord, error) {
	var product models.ProductRecord
	err := r.db.WithContext(ctx).
		Where("sku = ? AND langcode = ?", sku, langcode).
		First(&product).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// FindAllBySKU returns every locale variant of sku.
func (r *ProductRepository) FindAllBySKU(ctx context.Context, sku string) ([]models.ProductRecord, error) {
	var products []models.ProductRecord
	err := r.db.WithContext(ctx).
		Where("sku = ?", sku).
		Order("langcode").
		Find(&products).Error
	return products, translate(err)
}

func (r *ProductRepository) Create(ctx context.Context, product *models.ProductRecord) error {
	return translate(r.db.WithContext(ctx).Create(product).Error)
}

func (r *ProductRepository) Save(ctx context.Context, product *models.ProductRecord) error {
	return translate(r.db.WithContext(ctx).Save(product).Error)
}

// ListSKUs returns the SKUs known for a langcode.
func (r *ProductRepository) ListSKUs(ctx context.Context, langcode string) ([]string, error) {
	var skus []string
	err := r.db.WithContext(ctx).
		Model(&models.ProductRecord{}).
		Where("langcode = ?", langcode).
		Order("sku").
		Pluck("sku", &skus).Error
	return skus, translate(err)
}

func (r *ProductRepository) CountBySKU(ctx context.Context, sku string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductRecord{}).
		Where("sku = ?", sku).
		Count(&count).Error
	return count, translate(err)
}

// Delete removes the product together with its promotion memberships and
// the configurable links it owns.
func (r *ProductRepository) Delete(ctx context.Context, product *models.ProductRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", product.ID).Delete(&models.ProductPromotion{}).Error; err != nil {
			return fmt.Errorf("failed to delete promotion memberships: %w", err)
		}
		if err := tx.Where("parent_sku = ? AND langcode = ?", product.SKU, product.Langcode).
			Delete(&models.ConfigurableLink{}).Error; err != nil {
			return fmt.Errorf("failed to delete configurable links: %w", err)
		}
		return translate(tx.Delete(product).Error)
	})
}

// ReplaceConfigurableLinks rewrites the child list a configurable parent
// declares for one langcode.
func (r *ProductRepository) ReplaceConfigurableLinks(ctx context.Context, parentSKU, langcode string, childSKUs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_sku = ? AND langcode = ?", parentSKU, langcode).
			Delete(&models.ConfigurableLink{}).Error; err != nil {
			return err
		}
		if len(childSKUs) == 0 {
			return nil
		}
		links := make([]models.ConfigurableLink, 0, len(childSKUs))
		seen := make(map[string]bool, len(childSKUs))
		for i, child := range childSKUs {
			if child == "" || seen[child] {
				continue
			}
			seen[child] = true
			links = append(links, models.ConfigurableLink{
				ParentSKU: parentSKU,
				ChildSKU:  child,
				Langcode:  langcode,
				Position:  i,
			})
		}
		if len(links) == 0 {
			return nil
		}
		return translate(tx.Create(&links).Error)
	})
}

// FindParentSKUs lists the configurable parents that declare childSKU.
func (r *ProductRepository) FindParentSKUs(ctx context.Context, childSKU, langcode string) ([]string, error) {
	var parents []string
	err := r.db.WithContext(ctx).
		Model(&models.ConfigurableLink{}).
		Where("child_sku = ? AND langcode = ?", childSKU, langcode).
		Order("parent_sku").
		Pluck("parent_sku", &parents).Error
	return parents, translate(err)
}
