// Package pipeline runs the sync operations the API and the CLI expose. It
// chunks input, pulls pages from the commerce backend, records metrics and
// persists item errors as issues.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"catalogsync/internal/catalog"
	"catalogsync/internal/catalog/product"
	"catalogsync/internal/commerce"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/models"

	"golang.org/x/sync/errgroup"
)

type ProductSyncer interface {
	SynchronizeProducts(ctx context.Context, items []commerce.Product, storeID string, opts product.SyncOptions) (*catalog.ProductResult, error)
}

type CategorySyncer interface {
	SynchronizeTree(ctx context.Context, vocabulary string, remoteRoot *int64) (*catalog.TreeResult, error)
	SynchronizeCategory(ctx context.Context, vocabulary string, categories []commerce.Category, storeID string) (*catalog.CategoryResult, error)
}

type PromotionSyncer interface {
	SyncPromotions(ctx context.Context, types []models.PromotionType) (*catalog.PromotionResult, error)
}

type StockProcessor interface {
	ProcessStockMessage(ctx context.Context, msg commerce.StockMessage, storeID string) error
}

type StockValidator interface {
	ValidateStock(m commerce.StockMessage) error
}

type ProductSource interface {
	ProductFullSync(ctx context.Context, storeID string, page, pageSize int) (*commerce.ProductPage, error)
}

type IssueRecorder interface {
	RecordAll(ctx context.Context, component, storeID string, severity models.IssueSeverity, errs []catalog.ItemError) error
}

type StoreMarker interface {
	MarkSynced(ctx context.Context, storeID string, at time.Time) error
}

type Settings struct {
	ChunkSize          int
	PageSize           int
	Concurrency        int
	CategoryVocabulary string
	PromotionTypes     []models.PromotionType
	StoreIDs           []string
}

func SettingsFromConfig(cfg *config.Config) Settings {
	types := make([]models.PromotionType, 0, len(cfg.PromotionTypes))
	for _, t := range cfg.PromotionTypes {
		types = append(types, models.PromotionType(strings.TrimSpace(t)))
	}
	stores := make([]string, 0, len(cfg.StoreLangcodes))
	for id := range cfg.StoreLangcodes {
		stores = append(stores, id)
	}
	return Settings{
		ChunkSize:          cfg.ProductChunkSize,
		PageSize:           cfg.ProductChunkSize,
		Concurrency:        4,
		CategoryVocabulary: cfg.CategoryVocabulary,
		PromotionTypes:     types,
		StoreIDs:           stores,
	}
}

// Components gathers the collaborators of a Pipeline. Stock, StockValidator,
// Source, Issues and Stores may be nil when the caller never uses the
// operations that need them.
type Components struct {
	Products       ProductSyncer
	Categories     CategorySyncer
	Promotions     PromotionSyncer
	Stock          StockProcessor
	StockValidator StockValidator
	Source         ProductSource
	Issues         IssueRecorder
	Stores         StoreMarker
	Metrics        *metrics.Metrics
}

type Pipeline struct {
	c        Components
	settings Settings
	logger   *logger.Logger
	now      func() time.Time
}

func New(c Components, settings Settings, logger *logger.Logger) *Pipeline {
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	return &Pipeline{
		c:        c,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// StockResult aggregates one stock ingestion call.
type StockResult struct {
	Processed int                 `json:"processed"`
	Skipped   int                 `json:"skipped"`
	Errors    []catalog.ItemError `json:"errors"`
}

// IngestProducts reconciles a pushed payload in chunks. The payload is
// never a full catalog, so nothing is deleted by omission.
func (p *Pipeline) IngestProducts(ctx context.Context, items []commerce.Product, storeID string) (*catalog.ProductResult, error) {
	defer p.c.Metrics.ObserveDuration("product", time.Now())

	if len(items) == 0 {
		result, err := p.c.Products.SynchronizeProducts(ctx, nil, storeID, product.SyncOptions{})
		p.record(ctx, "product", storeID, models.IssueSeverityLow, resultErrors(result))
		return result, err
	}

	total := &catalog.ProductResult{}
	for _, chunk := range catalog.Chunk(items, p.settings.ChunkSize) {
		result, err := p.c.Products.SynchronizeProducts(ctx, chunk, storeID, product.SyncOptions{})
		total.Merge(result)
		if err != nil {
			p.finishProducts(ctx, storeID, total)
			return total, err
		}
	}
	p.finishProducts(ctx, storeID, total)
	return total, nil
}

// PullProducts fetches every page of each store's catalog and reconciles
// it. With full set the feed is treated as the complete catalog, so it is
// reconciled in one call that may delete by omission. Stores run
// concurrently; one store failing does not stop the others.
func (p *Pipeline) PullProducts(ctx context.Context, storeIDs []string, full bool) (map[string]*catalog.ProductResult, error) {
	if p.c.Source == nil {
		return nil, fmt.Errorf("no product source configured")
	}
	if len(storeIDs) == 0 {
		storeIDs = p.settings.StoreIDs
	}

	var mu sync.Mutex
	results := make(map[string]*catalog.ProductResult, len(storeIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.Concurrency)
	for _, storeID := range storeIDs {
		storeID := storeID
		g.Go(func() error {
			result, err := p.pullStore(gctx, storeID, full)
			if err != nil {
				p.logger.Error("Product pull for store %s failed: %v", storeID, err)
				if result == nil {
					result = &catalog.ProductResult{}
				}
				result.AddError(storeID, "pull failed", err)
				p.record(gctx, "product", storeID, models.IssueSeverityHigh, result.Errors[len(result.Errors)-1:])
			}
			mu.Lock()
			results[storeID] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (p *Pipeline) pullStore(ctx context.Context, storeID string, full bool) (*catalog.ProductResult, error) {
	defer p.c.Metrics.ObserveDuration("product", time.Now())

	items, err := p.fetchAll(ctx, storeID)
	if err != nil {
		return nil, err
	}

	total := &catalog.ProductResult{}
	if full {
		result, err := p.c.Products.SynchronizeProducts(ctx, items, storeID, product.SyncOptions{FullSync: true})
		total.Merge(result)
		if err != nil {
			return total, err
		}
	} else {
		for _, chunk := range catalog.Chunk(items, p.settings.ChunkSize) {
			result, err := p.c.Products.SynchronizeProducts(ctx, chunk, storeID, product.SyncOptions{})
			total.Merge(result)
			if err != nil {
				return total, err
			}
		}
	}
	p.finishProducts(ctx, storeID, total)

	if full && total.Success && p.c.Stores != nil {
		if err := p.c.Stores.MarkSynced(ctx, storeID, p.now()); err != nil {
			p.logger.Warn("Failed to stamp sync time of store %s: %v", storeID, err)
		}
	}
	return total, nil
}

func (p *Pipeline) fetchAll(ctx context.Context, storeID string) ([]commerce.Product, error) {
	var items []commerce.Product
	for page := 1; ; page++ {
		resp, err := p.c.Source.ProductFullSync(ctx, storeID, page, p.settings.PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		for i := range resp.Items {
			if resp.Items[i].StoreID == "" {
				resp.Items[i].StoreID = storeID
			}
		}
		items = append(items, resp.Items...)
		p.logger.Debug("Fetched page %d of store %s: %d items", page, storeID, len(resp.Items))
		if !resp.HasMore() {
			return items, nil
		}
	}
}

func (p *Pipeline) finishProducts(ctx context.Context, storeID string, result *catalog.ProductResult) {
	p.c.Metrics.RecordProducts(result)
	p.record(ctx, "product", storeID, models.IssueSeverityMedium, result.Errors)
}

// IngestStock applies stock messages one by one. Invalid messages are
// skipped and reported.
func (p *Pipeline) IngestStock(ctx context.Context, messages []commerce.StockMessage, storeID string) *StockResult {
	defer p.c.Metrics.ObserveDuration("stock", time.Now())

	result := &StockResult{}
	for i, msg := range messages {
		key := msg.SKU
		if key == "" {
			key = fmt.Sprintf("item[%d]", i)
		}
		if p.c.StockValidator != nil {
			if err := p.c.StockValidator.ValidateStock(msg); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, catalog.ItemError{Key: key, Reason: "invalid item", Err: err})
				continue
			}
		}
		if err := p.c.Stock.ProcessStockMessage(ctx, msg, storeID); err != nil {
			p.logger.Error("Failed to store stock of %s: %v", key, err)
			result.Errors = append(result.Errors, catalog.ItemError{Key: key, Reason: "save failed", Err: err})
			continue
		}
		result.Processed++
	}

	p.c.Metrics.AddItems("stock", "processed", result.Processed)
	p.c.Metrics.AddItems("stock", "skipped", result.Skipped)
	p.record(ctx, "stock", storeID, models.IssueSeverityLow, result.Errors)
	return result
}

// SyncCategoryTree mirrors the whole remote tree.
func (p *Pipeline) SyncCategoryTree(ctx context.Context) (*catalog.TreeResult, error) {
	defer p.c.Metrics.ObserveDuration("category", time.Now())

	result, err := p.c.Categories.SynchronizeTree(ctx, p.settings.CategoryVocabulary, nil)
	if err != nil {
		return result, err
	}
	p.c.Metrics.RecordTree(result)
	p.record(ctx, "category", "", models.IssueSeverityHigh, result.Errors)
	return result, nil
}

// IngestCategories applies a pushed list of categories.
func (p *Pipeline) IngestCategories(ctx context.Context, categories []commerce.Category, storeID string) (*catalog.CategoryResult, error) {
	defer p.c.Metrics.ObserveDuration("category", time.Now())

	result, err := p.c.Categories.SynchronizeCategory(ctx, p.settings.CategoryVocabulary, categories, storeID)
	if err != nil {
		return result, err
	}
	p.c.Metrics.RecordCategories(result)
	p.record(ctx, "category", storeID, models.IssueSeverityHigh, result.Errors)
	return result, nil
}

// SyncPromotions runs a full promotion sync. An empty types list means
// every configured type.
func (p *Pipeline) SyncPromotions(ctx context.Context, types []models.PromotionType) (*catalog.PromotionResult, error) {
	defer p.c.Metrics.ObserveDuration("promotion", time.Now())

	if len(types) == 0 {
		types = p.settings.PromotionTypes
	}
	result, err := p.c.Promotions.SyncPromotions(ctx, types)
	if err != nil {
		return result, err
	}
	p.c.Metrics.RecordPromotions(result)
	p.record(ctx, "promotion", "", models.IssueSeverityHigh, result.Errors)
	return result, nil
}

func (p *Pipeline) record(ctx context.Context, component, storeID string, severity models.IssueSeverity, errs []catalog.ItemError) {
	if p.c.Issues == nil || len(errs) == 0 {
		return
	}
	if err := p.c.Issues.RecordAll(ctx, component, storeID, severity, errs); err != nil {
		p.logger.Error("Failed to record %d %s issues: %v", len(errs), component, err)
	}
}

func resultErrors(r *catalog.ProductResult) []catalog.ItemError {
	if r == nil {
		return nil
	}
	return r.Errors
}
