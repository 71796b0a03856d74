package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProductRecord is one sellable unit for one locale. (SKU, Langcode) is the
// natural key.
type ProductRecord struct {
	ID                  string                      `json:"id" gorm:"type:varchar(36);primaryKey"`
	SKU                 string                      `json:"sku" gorm:"not null;uniqueIndex:idx_product_sku_langcode"`
	Langcode            string                      `json:"langcode" gorm:"not null;uniqueIndex:idx_product_sku_langcode;index"`
	StoreID             string                      `json:"store_id"`
	Name                string                      `json:"name"`
	Type                ProductType                 `json:"type" gorm:"not null;default:simple"`
	Price               decimal.Decimal             `json:"price" gorm:"type:decimal(12,4)"`
	FinalPrice          decimal.Decimal             `json:"final_price" gorm:"type:decimal(12,4)"`
	Status              ProductStatus               `json:"status" gorm:"default:1"`
	Visibility          int                         `json:"visibility" gorm:"default:4"`
	Attributes          datatypes.JSONMap           `json:"attributes"`
	CategoryIDs         datatypes.JSONSlice[int64]  `json:"category_ids"`
	ConfiguredChildSkus datatypes.JSONSlice[string] `json:"configured_child_skus"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

// ConfigurableLink records that a configurable parent lists a child SKU.
// Only the parent's sync writes these rows.
type ConfigurableLink struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	ParentSKU string `json:"parent_sku" gorm:"not null;uniqueIndex:idx_link_parent_child"`
	ChildSKU  string `json:"child_sku" gorm:"not null;uniqueIndex:idx_link_parent_child;index:idx_link_child"`
	Langcode  string `json:"langcode" gorm:"not null;uniqueIndex:idx_link_parent_child;index:idx_link_child"`
	Position  int    `json:"position"`
}

type ProductType string

const (
	ProductTypeSimple       ProductType = "simple"
	ProductTypeConfigurable ProductType = "configurable"
	ProductTypeVirtual      ProductType = "virtual"
	ProductTypeBundle       ProductType = "bundle"
)

type ProductStatus int

const (
	ProductStatusEnabled  ProductStatus = 1
	ProductStatusDisabled ProductStatus = 2
)

const (
	// VisibilityNotVisible marks SKUs that are only sold through a parent.
	VisibilityNotVisible    = 1
	VisibilityCatalogSearch = 4
)

func (p *ProductRecord) Enabled() bool {
	return p.Status != ProductStatusDisabled
}

func (p *ProductRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
