// Package stock maintains the stock cache. In push mode entries are the
// latest message received and never expire; in pull mode missing or expired
// entries are fetched from the remote backend and cached for a time that
// grows with the quantity.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalogsync/internal/commerce"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"
)

var ErrMissingSKU = errors.New("stock message has no sku")

type Store interface {
	Get(ctx context.Context, sku string) (*models.StockCacheEntry, error)
	Put(ctx context.Context, entry *models.StockCacheEntry) error
}

type Source interface {
	GetStock(ctx context.Context, sku string) (*commerce.StockMessage, error)
}

type Settings struct {
	Mode        string
	Multiplier  time.Duration
	MaxLifetime time.Duration
	MinLifetime time.Duration
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Mode:        cfg.StockMode,
		Multiplier:  cfg.StockCacheMultiplier,
		MaxLifetime: cfg.StockCacheMaxLifetime,
		MinLifetime: cfg.StockCacheMinLifetime,
	}
}

type Manager struct {
	store    Store
	source   Source
	settings Settings
	logger   *logger.Logger
	now      func() time.Time
}

// NewManager builds a manager. source is only used in pull mode and may be
// nil otherwise.
func NewManager(store Store, source Source, settings Settings, logger *logger.Logger) *Manager {
	return &Manager{
		store:    store,
		source:   source,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

func (m *Manager) pull() bool {
	return m.settings.Mode == config.StockModePull
}

// CacheTTL is min(quantity*multiplier, max), floored at the minimum.
func (m *Manager) CacheTTL(quantity int) time.Duration {
	s := m.settings
	if quantity < 0 {
		quantity = 0
	}

	ttl := s.MaxLifetime
	if s.Multiplier > 0 && time.Duration(quantity) <= s.MaxLifetime/s.Multiplier {
		ttl = time.Duration(quantity) * s.Multiplier
	}
	if ttl < s.MinLifetime {
		ttl = s.MinLifetime
	}
	return ttl
}

// ProcessStockMessage writes the cache entry for one message. storeID is
// used when the message does not carry its own.
func (m *Manager) ProcessStockMessage(ctx context.Context, msg commerce.StockMessage, storeID string) error {
	msg.SKU = strings.TrimSpace(msg.SKU)
	if msg.SKU == "" {
		return ErrMissingSKU
	}
	if msg.StoreID == "" {
		msg.StoreID = storeID
	}

	entry := m.entryFor(msg)
	if err := m.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("failed to cache stock for %s: %w", msg.SKU, err)
	}
	m.logger.Debug("Stock for %s set to %d (in stock: %t)", entry.SKU, entry.Quantity, entry.InStock)
	return nil
}

func (m *Manager) entryFor(msg commerce.StockMessage) *models.StockCacheEntry {
	qty := msg.Qty()
	entry := &models.StockCacheEntry{
		SKU:      msg.SKU,
		StoreID:  msg.StoreID,
		Quantity: qty,
		InStock:  qty > 0 && msg.IsInStock,
	}
	if m.pull() {
		expires := m.now().Add(m.CacheTTL(qty))
		entry.ExpiresAt = &expires
	}
	return entry
}

func (m *Manager) GetStockQuantity(ctx context.Context, sku string) (int, error) {
	entry, err := m.entry(ctx, sku)
	if err != nil {
		return 0, err
	}
	return entry.Quantity, nil
}

func (m *Manager) IsProductInStock(ctx context.Context, sku string) (bool, error) {
	entry, err := m.entry(ctx, sku)
	if err != nil {
		return false, err
	}
	return entry.InStock, nil
}

func (m *Manager) entry(ctx context.Context, sku string) (*models.StockCacheEntry, error) {
	cached, err := m.store.Get(ctx, sku)
	switch {
	case err == nil:
		if !m.pull() || !cached.Expired(m.now()) {
			return cached, nil
		}
	case errors.Is(err, repository.ErrNotFound):
		if !m.pull() {
			return &models.StockCacheEntry{SKU: sku}, nil
		}
	default:
		return nil, fmt.Errorf("failed to read stock for %s: %w", sku, err)
	}

	if m.source == nil {
		return nil, fmt.Errorf("no stock source configured for pull mode")
	}
	msg, err := m.source.GetStock(ctx, sku)
	if errors.Is(err, commerce.ErrNotFound) {
		m.logger.Warn("Stock for %s not found upstream, caching as out of stock", sku)
		msg = &commerce.StockMessage{SKU: sku}
	} else if err != nil {
		return nil, fmt.Errorf("failed to fetch stock for %s: %w", sku, err)
	}
	msg.SKU = sku

	entry := m.entryFor(*msg)
	if err := m.store.Put(ctx, entry); err != nil {
		// the fetched value is still correct
		m.logger.Error("Failed to cache stock for %s: %v", sku, err)
	}
	return entry, nil
}
