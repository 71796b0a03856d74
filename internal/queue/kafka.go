package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Generations stores the current generation of each kafka-backed queue.
// Kafka cannot delete messages, so a drain bumps the generation and
// consumers discard anything written under an older one.
type Generations struct {
	db *gorm.DB
}

func NewGenerations(db *gorm.DB) *Generations {
	return &Generations{db: db}
}

func (g *Generations) Current(ctx context.Context, queue string) (int64, error) {
	row := models.QueueGeneration{Queue: queue, Generation: 1}
	err := g.db.WithContext(ctx).
		Where(models.QueueGeneration{Queue: queue}).
		FirstOrCreate(&row).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read generation of %s: %w", queue, err)
	}
	return row.Generation, nil
}

// Bump starts a new generation and returns it.
func (g *Generations) Bump(ctx context.Context, queue string) (int64, error) {
	var generation int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.QueueGeneration{Queue: queue, Generation: 1}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.QueueGeneration{}).
			Where("queue = ?", queue).
			Updates(map[string]interface{}{
				"generation": gorm.Expr("generation + 1"),
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		var current models.QueueGeneration
		if err := tx.First(&current, "queue = ?", queue).Error; err != nil {
			return err
		}
		generation = current.Generation
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to bump generation of %s: %w", queue, err)
	}
	return generation, nil
}

// KafkaQueue publishes work items to one topic and consumes them through a
// consumer group.
type KafkaQueue struct {
	name        string
	writer      *kafka.Writer
	reader      *kafka.Reader
	generations *Generations
	pollTimeout time.Duration
	maxAttempts int
	logger      *logger.Logger
}

func NewKafkaQueue(brokers []string, topic, groupID string, generations *Generations, pollTimeout time.Duration, maxAttempts int, logger *logger.Logger) *KafkaQueue {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &KafkaQueue{
		name:        topic,
		writer:      writer,
		reader:      reader,
		generations: generations,
		pollTimeout: pollTimeout,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (q *KafkaQueue) Name() string {
	return q.name
}

func (q *KafkaQueue) Enqueue(ctx context.Context, items ...WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	generation, err := q.generations.Current(ctx, q.name)
	if err != nil {
		return err
	}

	messages := make([]kafka.Message, 0, len(items))
	for _, item := range items {
		item.Generation = generation
		value, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to encode work item: %w", err)
		}
		messages = append(messages, kafka.Message{Key: []byte(item.PromotionID), Value: value})
	}
	if err := q.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", q.name, err)
	}
	return nil
}

// Drain fences off every message published so far. The number of discarded
// messages is unknown until consumers reach them.
func (q *KafkaQueue) Drain(ctx context.Context) (int64, error) {
	generation, err := q.generations.Bump(ctx, q.name)
	if err != nil {
		return 0, err
	}
	q.logger.Info("Queue %s moved to generation %d", q.name, generation)
	return -1, nil
}

func (q *KafkaQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		fetchCtx, cancel := context.WithTimeout(ctx, q.pollTimeout)
		message, err := q.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, ErrEmpty
			}
			return nil, fmt.Errorf("failed to read from %s: %w", q.name, err)
		}

		var item WorkItem
		if err := json.Unmarshal(message.Value, &item); err != nil {
			q.logger.Error("Dropping undecodable message at offset %d of %s: %v", message.Offset, q.name, err)
			if err := q.reader.CommitMessages(ctx, message); err != nil {
				return nil, err
			}
			continue
		}

		current, err := q.generations.Current(ctx, q.name)
		if err != nil {
			return nil, err
		}
		if stale(item, current) {
			q.logger.Debug("Skipping generation %d item for promotion %s on %s", item.Generation, item.PromotionID, q.name)
			if err := q.reader.CommitMessages(ctx, message); err != nil {
				return nil, err
			}
			continue
		}

		msg := message
		return &Delivery{
			Item: item,
			ack: func(ctx context.Context) error {
				return q.reader.CommitMessages(ctx, msg)
			},
			nack: func(ctx context.Context) error {
				return q.requeue(ctx, item, msg)
			},
		}, nil
	}
}

// requeue republishes a failed item at the tail of the topic, since kafka
// offers no per-message redelivery, and commits the original.
func (q *KafkaQueue) requeue(ctx context.Context, item WorkItem, msg kafka.Message) error {
	item.Attempts++
	if q.maxAttempts > 0 && item.Attempts >= q.maxAttempts {
		q.logger.Error("Dropping item for promotion %s from %s after %d attempts", item.PromotionID, q.name, item.Attempts)
		return q.reader.CommitMessages(ctx, msg)
	}
	value, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode work item: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{Key: msg.Key, Value: value}); err != nil {
		return fmt.Errorf("failed to requeue to %s: %w", q.name, err)
	}
	return q.reader.CommitMessages(ctx, msg)
}

func (q *KafkaQueue) Close() error {
	return errors.Join(q.writer.Close(), q.reader.Close())
}

// stale reports whether item was published before the last drain.
func stale(item WorkItem, current int64) bool {
	return item.Generation < current
}
