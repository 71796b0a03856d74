package repository

import (
	"context"
	"time"

	"catalogsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StoreRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

func (r *StoreRepository) FindByStoreID(ctx context.Context, storeID string) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).First(&store, "store_id = ?", storeID).Error; err != nil {
		return nil, translate(err)
	}
	return &store, nil
}

// Upsert creates the mapping or updates its langcode and name.
func (r *StoreRepository) Upsert(ctx context.Context, store *models.Store) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "langcode", "status", "updated_at"}),
	}).Create(store).Error)
}

// MarkSynced stamps the last full sync time of a store, if it is known.
func (r *StoreRepository) MarkSynced(ctx context.Context, storeID string, at time.Time) error {
	return translate(r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("store_id = ?", storeID).
		Update("last_sync", at).Error)
}
