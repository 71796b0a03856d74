package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStockRepository keeps stock cache entries in redis. Entries with an
// expiry are written with a matching key TTL so redis evicts them itself.
type RedisStockRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStockRepository(redisURL string) (*RedisStockRepository, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisStockRepository{
		client: redis.NewClient(opts),
		prefix: "catalogsync:stock:",
		now:    time.Now,
	}, nil
}

func (r *RedisStockRepository) key(sku string) string {
	return r.prefix + sku
}

func (r *RedisStockRepository) Get(ctx context.Context, sku string) (*models.StockCacheEntry, error) {
	data, err := r.client.Get(ctx, r.key(sku)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stock for %s: %w", sku, err)
	}

	var entry models.StockCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode stock for %s: %w", sku, err)
	}
	return &entry, nil
}

func (r *RedisStockRepository) Put(ctx context.Context, entry *models.StockCacheEntry) error {
	entry.UpdatedAt = r.now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode stock for %s: %w", entry.SKU, err)
	}

	var ttl time.Duration
	if entry.ExpiresAt != nil {
		ttl = entry.ExpiresAt.Sub(entry.UpdatedAt)
		if ttl <= 0 {
			return r.client.Del(ctx, r.key(entry.SKU)).Err()
		}
	}
	if err := r.client.Set(ctx, r.key(entry.SKU), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write stock for %s: %w", entry.SKU, err)
	}
	return nil
}

func (r *RedisStockRepository) Close() error {
	return r.client.Close()
}
