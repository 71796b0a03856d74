package models

import (
	"time"

	"gorm.io/datatypes"
)

// QueueItem is a pending work item of a database-backed queue.
type QueueItem struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Queue        string         `json:"queue" gorm:"not null;index:idx_queue_claim"`
	Payload      datatypes.JSON `json:"payload" gorm:"not null"`
	Attempts     int            `json:"attempts" gorm:"not null;default:0"`
	ClaimedUntil *time.Time     `json:"claimed_until" gorm:"index:idx_queue_claim"`
	CreatedAt    time.Time      `json:"created_at"`
}

// QueueGeneration fences kafka-backed queues: items written under an older
// generation are discarded by consumers.
type QueueGeneration struct {
	Queue      string    `json:"queue" gorm:"primaryKey"`
	Generation int64     `json:"generation" gorm:"not null;default:1"`
	UpdatedAt  time.Time `json:"updated_at"`
}
