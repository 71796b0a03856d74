package repository

import (
	"context"

	"catalogsync/internal/models"

	"gorm.io/gorm"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Find(ctx context.Context, vocabulary string, commerceID int64) (*models.CategoryNode, error) {
	var node models.CategoryNode
	err := r.db.WithContext(ctx).
		Where("vocabulary = ? AND commerce_id = ?", vocabulary, commerceID).
		First(&node).Error
	if err != nil {
		return nil, translate(err)
	}
	return &node, nil
}

func (r *CategoryRepository) Create(ctx context.Context, node *models.CategoryNode) error {
	return translate(r.db.WithContext(ctx).Create(node).Error)
}

func (r *CategoryRepository) Save(ctx context.Context, node *models.CategoryNode) error {
	return translate(r.db.WithContext(ctx).Save(node).Error)
}

// List returns every node of a vocabulary ordered by commerce id.
func (r *CategoryRepository) List(ctx context.Context, vocabulary string) ([]models.CategoryNode, error) {
	var nodes []models.CategoryNode
	err := r.db.WithContext(ctx).
		Where("vocabulary = ?", vocabulary).
		Order("commerce_id").
		Find(&nodes).Error
	return nodes, translate(err)
}

func (r *CategoryRepository) DeleteByCommerceIDs(ctx context.Context, vocabulary string, commerceIDs []int64) (int64, error) {
	if len(commerceIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("vocabulary = ? AND commerce_id IN ?", vocabulary, commerceIDs).
		Delete(&models.CategoryNode{})
	return res.RowsAffected, translate(res.Error)
}
