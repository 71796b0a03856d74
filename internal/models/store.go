package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store maps a remote store identifier to a langcode.
type Store struct {
	ID        string      `json:"id" gorm:"type:varchar(36);primaryKey"`
	StoreID   string      `json:"store_id" gorm:"not null;uniqueIndex"`
	Name      string      `json:"name"`
	Langcode  string      `json:"langcode" gorm:"not null"`
	Status    StoreStatus `json:"status" gorm:"default:ACTIVE"`
	LastSync  *time.Time  `json:"last_sync"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type StoreStatus string

const (
	StoreStatusActive   StoreStatus = "ACTIVE"
	StoreStatusInactive StoreStatus = "INACTIVE"
	StoreStatusSyncing  StoreStatus = "SYNCING"
)

func (s *Store) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
