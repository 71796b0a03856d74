package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PromotionRecord is keyed by (RuleID, Type). The attached SKUs live in
// ProductPromotion rows.
type PromotionRecord struct {
	ID            string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	RuleID        int64           `json:"rule_id" gorm:"not null;index:idx_promotion_rule_type"`
	Type          PromotionType   `json:"promotion_type" gorm:"column:promotion_type;not null;index:idx_promotion_rule_type"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value" gorm:"type:decimal(12,4)"`
	CouponCode    string          `json:"coupon_code"`
	Status        bool            `json:"status"`
	Label         string          `json:"label"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	Labels []PromotionLabel `json:"labels,omitempty" gorm:"foreignKey:PromotionID;constraint:OnDelete:CASCADE"`
}

// PromotionLabel holds the label for a non-default locale.
type PromotionLabel struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	PromotionID string `json:"promotion_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_promotion_label"`
	Langcode    string `json:"langcode" gorm:"not null;uniqueIndex:idx_promotion_label"`
	Label       string `json:"label"`
}

// ProductPromotion is one product variant's membership in a promotion.
type ProductPromotion struct {
	ID          uint                `json:"id" gorm:"primaryKey"`
	ProductID   string              `json:"product_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_product_promotion"`
	PromotionID string              `json:"promotion_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_product_promotion;index"`
	SKU         string              `json:"sku" gorm:"not null;index"`
	Langcode    string              `json:"langcode" gorm:"not null"`
	FinalPrice  decimal.NullDecimal `json:"final_price" gorm:"type:decimal(12,4)"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type PromotionType string

const (
	PromotionTypeCart     PromotionType = "cart"
	PromotionTypeCategory PromotionType = "category"
)

func (t PromotionType) Valid() bool {
	switch t {
	case PromotionTypeCart, PromotionTypeCategory:
		return true
	}
	return false
}

func (p *PromotionRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
