package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CategoryNode mirrors one remote category. ParentCommerceID 0 means the
// node hangs directly under the configured root.
type CategoryNode struct {
	ID               string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	Vocabulary       string            `json:"vocabulary" gorm:"not null;uniqueIndex:idx_category_vocab_commerce"`
	CommerceID       int64             `json:"commerce_id" gorm:"not null;uniqueIndex:idx_category_vocab_commerce"`
	ParentCommerceID int64             `json:"parent_commerce_id" gorm:"not null;default:0;index"`
	Name             string            `json:"name" gorm:"not null"`
	Position         int               `json:"position"`
	IsActive         bool              `json:"is_active" gorm:"not null"`
	Translations     datatypes.JSONMap `json:"translations"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (c *CategoryNode) IsTopLevel() bool {
	return c.ParentCommerceID == 0
}

func (c *CategoryNode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
