package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseQueue stores items in the queue_items table. A receiver claims an
// item for the lease duration; an unacknowledged item becomes visible again
// once the lease runs out.
type DatabaseQueue struct {
	db          *gorm.DB
	name        string
	lease       time.Duration
	maxAttempts int
	logger      *logger.Logger
	now         func() time.Time
}

func NewDatabaseQueue(db *gorm.DB, name string, lease time.Duration, maxAttempts int, logger *logger.Logger) *DatabaseQueue {
	return &DatabaseQueue{
		db:          db,
		name:        name,
		lease:       lease,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

func (q *DatabaseQueue) Name() string {
	return q.name
}

func (q *DatabaseQueue) Enqueue(ctx context.Context, items ...WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]models.QueueItem, 0, len(items))
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to encode work item: %w", err)
		}
		rows = append(rows, models.QueueItem{Queue: q.name, Payload: payload})
	}
	if err := q.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("failed to enqueue into %s: %w", q.name, err)
	}
	return nil
}

func (q *DatabaseQueue) Drain(ctx context.Context) (int64, error) {
	res := q.db.WithContext(ctx).Where("queue = ?", q.name).Delete(&models.QueueItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to drain %s: %w", q.name, res.Error)
	}
	return res.RowsAffected, nil
}

// Pending counts items that are not deleted, claimed or not.
func (q *DatabaseQueue) Pending(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&models.QueueItem{}).Where("queue = ?", q.name).Count(&count).Error
	return count, err
}

func (q *DatabaseQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		row, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}

		if q.maxAttempts > 0 && row.Attempts > q.maxAttempts {
			q.logger.Error("Dropping item %d from %s after %d attempts: %s", row.ID, q.name, row.Attempts-1, string(row.Payload))
			if err := q.delete(ctx, row.ID); err != nil {
				return nil, err
			}
			continue
		}

		var item WorkItem
		if err := json.Unmarshal(row.Payload, &item); err != nil {
			q.logger.Error("Dropping undecodable item %d from %s: %v", row.ID, q.name, err)
			if err := q.delete(ctx, row.ID); err != nil {
				return nil, err
			}
			continue
		}
		item.Attempts = row.Attempts

		id := row.ID
		return &Delivery{
			Item: item,
			ack: func(ctx context.Context) error {
				return q.delete(ctx, id)
			},
			nack: func(ctx context.Context) error {
				return q.db.WithContext(ctx).Model(&models.QueueItem{}).
					Where("id = ?", id).
					Update("claimed_until", nil).Error
			},
		}, nil
	}
}

// claim leases the oldest visible item.
func (q *DatabaseQueue) claim(ctx context.Context) (*models.QueueItem, error) {
	var row models.QueueItem
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := q.now()
		query := tx.Where("queue = ? AND (claimed_until IS NULL OR claimed_until < ?)", q.name, now).
			Order("id")
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.First(&row).Error; err != nil {
			return err
		}

		until := now.Add(q.lease)
		row.ClaimedUntil = &until
		row.Attempts++
		return tx.Model(&models.QueueItem{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
			"claimed_until": until,
			"attempts":      row.Attempts,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim from %s: %w", q.name, err)
	}
	return &row, nil
}

func (q *DatabaseQueue) delete(ctx context.Context, id uint) error {
	if err := q.db.WithContext(ctx).Delete(&models.QueueItem{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete item %d from %s: %w", id, q.name, err)
	}
	return nil
}

func (q *DatabaseQueue) Close() error {
	return nil
}
