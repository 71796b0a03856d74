package repository

import (
	"context"

	"catalogsync/internal/models"

	"gorm.io/gorm"
)

type DisplayRepository struct {
	db *gorm.DB
}

func NewDisplayRepository(db *gorm.DB) *DisplayRepository {
	return &DisplayRepository{db: db}
}

// FindBySKU is the reverse lookup of the SKU reference field, scoped to
// one display type.
func (r *DisplayRepository) FindBySKU(ctx context.Context, displayType, sku string) (*models.DisplayRecord, error) {
	var display models.DisplayRecord
	err := r.db.WithContext(ctx).
		Where("display_type = ? AND sku = ?", displayType, sku).
		First(&display).Error
	if err != nil {
		return nil, translate(err)
	}
	return &display, nil
}

func (r *DisplayRepository) Create(ctx context.Context, display *models.DisplayRecord) error {
	return translate(r.db.WithContext(ctx).Create(display).Error)
}

func (r *DisplayRepository) FindTranslation(ctx context.Context, displayID, langcode string) (*models.DisplayTranslation, error) {
	var translation models.DisplayTranslation
	err := r.db.WithContext(ctx).
		Where("display_id = ? AND langcode = ?", displayID, langcode).
		First(&translation).Error
	if err != nil {
		return nil, translate(err)
	}
	return &translation, nil
}

func (r *DisplayRepository) CreateTranslation(ctx context.Context, translation *models.DisplayTranslation) error {
	return translate(r.db.WithContext(ctx).Create(translation).Error)
}

func (r *DisplayRepository) DeleteTranslation(ctx context.Context, displayID, langcode string) error {
	return translate(r.db.WithContext(ctx).
		Where("display_id = ? AND langcode = ?", displayID, langcode).
		Delete(&models.DisplayTranslation{}).Error)
}

func (r *DisplayRepository) Delete(ctx context.Context, display *models.DisplayRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("display_id = ?", display.ID).Delete(&models.DisplayTranslation{}).Error; err != nil {
			return err
		}
		return translate(tx.Delete(display).Error)
	})
}
