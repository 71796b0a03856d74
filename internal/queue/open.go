package queue

import (
	"fmt"

	"catalogsync/internal/config"
	"catalogsync/internal/logger"

	"gorm.io/gorm"
)

// Pair is the attach and detach queue owned by the promotion reconciler.
type Pair struct {
	Attach Queue
	Detach Queue
}

func (p Pair) All() []Queue {
	return []Queue{p.Attach, p.Detach}
}

func (p Pair) Close() error {
	var firstErr error
	for _, q := range p.All() {
		if err := q.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open builds the configured queue pair.
func Open(cfg *config.Config, db *gorm.DB, logger *logger.Logger) (Pair, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendDatabase:
		return Pair{
			Attach: NewDatabaseQueue(db, cfg.AttachQueue, cfg.WorkerLease, cfg.WorkerMaxAttempts, logger),
			Detach: NewDatabaseQueue(db, cfg.DetachQueue, cfg.WorkerLease, cfg.WorkerMaxAttempts, logger),
		}, nil
	case config.QueueBackendKafka:
		generations := NewGenerations(db)
		return Pair{
			Attach: NewKafkaQueue(cfg.KafkaBrokers, cfg.AttachQueue, "catalogsync-"+cfg.AttachQueue, generations, cfg.WorkerPollInterval, cfg.WorkerMaxAttempts, logger),
			Detach: NewKafkaQueue(cfg.KafkaBrokers, cfg.DetachQueue, "catalogsync-"+cfg.DetachQueue, generations, cfg.WorkerPollInterval, cfg.WorkerMaxAttempts, logger),
		}, nil
	default:
		return Pair{}, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}
