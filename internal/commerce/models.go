package commerce

import (
	"math"

	"catalogsync/internal/models"

	"github.com/shopspring/decimal"
)

// Product is one raw feed item. Pointer and nil-slice fields distinguish
// "not supplied" from "supplied as zero", so partial feeds never clear
// stored values.
type Product struct {
	SKU                 string                 `json:"sku"`
	StoreID             string                 `json:"store_id,omitempty"`
	Name                *string                `json:"name,omitempty"`
	Type                *string                `json:"type,omitempty"`
	Price               *decimal.Decimal       `json:"price,omitempty"`
	FinalPrice          *decimal.Decimal       `json:"final_price,omitempty"`
	Status              *int                   `json:"status,omitempty"`
	Visibility          *int                   `json:"visibility,omitempty"`
	Attributes          map[string]interface{} `json:"attributes,omitempty"`
	CategoryIDs         []int64                `json:"category_ids,omitempty"`
	ConfiguredChildSkus []string               `json:"configured_child_skus,omitempty"`
	Stock               *StockMessage          `json:"stock,omitempty"`
}

// ProductPage is one page of a full product sync.
type ProductPage struct {
	Items    []Product `json:"items"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int       `json:"total"`
}

// HasMore reports whether another page follows this one.
func (p *ProductPage) HasMore() bool {
	return len(p.Items) > 0 && p.Page*p.PageSize < p.Total
}

// Category is a node of the remote category tree.
type Category struct {
	ID       int64      `json:"id"`
	ParentID int64      `json:"parent_id"`
	Name     string     `json:"name"`
	Position int        `json:"position"`
	IsActive *bool      `json:"is_active,omitempty"`
	Level    int        `json:"level"`
	Children []Category `json:"children,omitempty"`
}

// Promotion is a remote promotion rule. Type is not part of the wire format;
// the reconciler tags it after fetching.
type Promotion struct {
	RuleID         int64                `json:"rule_id"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	DiscountType   string               `json:"discount_type"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	CouponCode     string               `json:"coupon_code"`
	Status         bool                 `json:"status"`
	Labels         []PromotionLabel     `json:"labels"`
	Products       []PromotionProduct   `json:"products"`
	Type           models.PromotionType `json:"-"`
}

type PromotionLabel struct {
	StoreID    string `json:"store_id"`
	StoreLabel string `json:"store_label"`
}

type PromotionProduct struct {
	SKU        string           `json:"product_sku"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
}

// StockMessage is a stock-only update for one SKU.
type StockMessage struct {
	SKU       string  `json:"sku"`
	Quantity  float64 `json:"qty"`
	IsInStock bool    `json:"is_in_stock"`
	StoreID   string  `json:"store_id,omitempty"`
}

// MaxQty caps quantities so they fit the int columns they are stored in.
const MaxQty = math.MaxInt32

// Qty is the quantity as a whole number of units in [0, MaxQty].
func (m *StockMessage) Qty() int {
	if m.Quantity <= 0 || math.IsNaN(m.Quantity) {
		return 0
	}
	if m.Quantity >= MaxQty {
		return MaxQty
	}
	return int(math.Floor(m.Quantity))
}
