package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DisplayRecord is the storefront document bound to a SKU through its SKU
// reference field.
type DisplayRecord struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	DisplayType string    `json:"display_type" gorm:"not null;uniqueIndex:idx_display_type_sku"`
	SKU         string    `json:"sku" gorm:"not null;uniqueIndex:idx_display_type_sku"`
	Title       string    `json:"title" gorm:"not null"`
	Langcode    string    `json:"langcode" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Translations []DisplayTranslation `json:"translations,omitempty" gorm:"foreignKey:DisplayID;constraint:OnDelete:CASCADE"`
}

type DisplayTranslation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	DisplayID string    `json:"display_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_display_translation"`
	Langcode  string    `json:"langcode" gorm:"not null;uniqueIndex:idx_display_translation"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *DisplayRecord) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}
