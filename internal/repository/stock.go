package repository

import (
	"context"

	"catalogsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) Get(ctx context.Context, sku string) (*models.StockCacheEntry, error) {
	var entry models.StockCacheEntry
	if err := r.db.WithContext(ctx).First(&entry, "sku = ?", sku).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

// Put overwrites the entry for entry.SKU.
func (r *StockRepository) Put(ctx context.Context, entry *models.StockCacheEntry) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"store_id", "quantity", "in_stock", "expires_at", "updated_at"}),
	}).Create(entry).Error)
}
