package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Issue is an item-level sync failure kept for later investigation.
type Issue struct {
	ID          string        `json:"id" gorm:"type:varchar(36);primaryKey"`
	Component   string        `json:"component" gorm:"not null;index"`
	Key         string        `json:"key" gorm:"not null;index"`
	StoreID     string        `json:"store_id"`
	Code        string        `json:"code" gorm:"not null"`
	Severity    IssueSeverity `json:"severity" gorm:"not null"`
	Explanation string        `json:"explanation" gorm:"not null"`
	IsResolved  bool          `json:"is_resolved" gorm:"default:false"`
	ResolvedAt  *time.Time    `json:"resolved_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type IssueSeverity string

const (
	IssueSeverityLow      IssueSeverity = "LOW"
	IssueSeverityMedium   IssueSeverity = "MEDIUM"
	IssueSeverityHigh     IssueSeverity = "HIGH"
	IssueSeverityCritical IssueSeverity = "CRITICAL"
)

func (i *Issue) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}
