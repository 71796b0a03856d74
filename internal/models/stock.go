package models

import "time"

// StockCacheEntry is never authoritative; overwriting it is always safe.
type StockCacheEntry struct {
	SKU       string     `json:"sku" gorm:"primaryKey"`
	StoreID   string     `json:"store_id"`
	Quantity  int        `json:"quantity" gorm:"not null;default:0"`
	InStock   bool       `json:"in_stock"`
	ExpiresAt *time.Time `json:"expires_at" gorm:"index"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether the entry should be refreshed. Entries without an
// expiry never expire.
func (e *StockCacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}
