// Package app wires the configured components together. The binaries and
// the HTTP tests share it so they always run the same object graph.
package app

import (
	"context"
	"fmt"

	"catalogsync/internal/api"
	"catalogsync/internal/catalog/category"
	"catalogsync/internal/catalog/product"
	"catalogsync/internal/catalog/promotion"
	"catalogsync/internal/catalog/stock"
	"catalogsync/internal/commerce"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/locale"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/models"
	"catalogsync/internal/pipeline"
	"catalogsync/internal/queue"
	"catalogsync/internal/repository"
	"catalogsync/internal/validation"
	"catalogsync/internal/worker"
	"catalogsync/internal/worker/processors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type stockStore interface {
	stock.Store
	Close() error
}

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *database.Database
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Commerce *commerce.Client
	Locales  *locale.Resolver

	Products   *repository.ProductRepository
	Promotions *repository.PromotionRepository
	Stores     *repository.StoreRepository
	Issues     *repository.IssueRepository

	Stock               *stock.Manager
	CategoryReconciler  *category.Reconciler
	ProductReconciler   *product.Reconciler
	PromotionReconciler *promotion.Reconciler
	Pipeline            *pipeline.Pipeline

	Queues queue.Pair
	Worker *worker.Worker

	stockStore stockStore
}

// Build wires every component over an open, migrated database. The stock
// and queue backends are opened here and released by Close.
func Build(cfg *config.Config, db *database.Database, log *logger.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	gdb := db.DB
	a.Products = repository.NewProductRepository(gdb)
	a.Promotions = repository.NewPromotionRepository(gdb)
	a.Stores = repository.NewStoreRepository(gdb)
	a.Issues = repository.NewIssueRepository(gdb)
	displays := repository.NewDisplayRepository(gdb)
	categories := repository.NewCategoryRepository(gdb)

	a.Commerce = commerce.NewClient(cfg.CommerceBaseURL, cfg.CommerceAPIToken, cfg.CommerceTimeout, cfg.CommerceRateLimit, log)
	a.Locales = locale.NewResolver(cfg.DefaultLangcode, cfg.StoreLangcodes, a.Stores)

	switch cfg.StockBackend {
	case config.StockBackendRedis:
		store, err := repository.NewRedisStockRepository(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.stockStore = store
	default:
		a.stockStore = dbStockStore{repository.NewStockRepository(gdb)}
	}
	a.Stock = stock.NewManager(a.stockStore, a.Commerce, stock.SettingsFromConfig(cfg), log)

	validator := validation.New(log)
	a.CategoryReconciler = category.NewReconciler(categories, a.Commerce, a.Locales, cfg.CategoryRootID, cfg.CategoryPruneOrphans, log)
	a.ProductReconciler = product.NewReconciler(a.Products, displays, a.CategoryReconciler, a.Stock, a.Locales, validator,
		product.SettingsFromConfig(cfg), log)

	queues, err := queue.Open(cfg, gdb, log)
	if err != nil {
		_ = a.stockStore.Close()
		return nil, err
	}
	a.Queues = queues
	a.PromotionReconciler = promotion.NewReconciler(a.Promotions, a.Commerce, queues, a.Locales, cfg.PromotionBatchSize, log)

	a.Pipeline = pipeline.New(pipeline.Components{
		Products:       a.ProductReconciler,
		Categories:     a.CategoryReconciler,
		Promotions:     a.PromotionReconciler,
		Stock:          a.Stock,
		StockValidator: validator,
		Source:         a.Commerce,
		Issues:         a.Issues,
		Stores:         a.Stores,
		Metrics:        a.Metrics,
	}, pipeline.SettingsFromConfig(cfg), log)

	a.Worker = worker.New(queues, processors.NewBatchProcessor(a.Promotions, a.Products, log),
		cfg.WorkerPollInterval, a.Metrics, log)

	return a, nil
}

// Server builds the HTTP server over the app's components.
func (a *App) Server() *api.Server {
	return api.New(a.Config, a.Logger, api.Dependencies{
		Pipeline: a.Pipeline,
		Stock:    a.Stock,
		Displays: a.ProductReconciler,
		Locales:  a.Locales,
		Issues:   a.Issues,
		Gatherer: a.Registry,
		Ping:     a.DB.Ping,
	})
}

// SeedStores persists the static store mapping so lookups made outside the
// configuration (other processes, the admin API) see the same stores.
func (a *App) SeedStores(ctx context.Context) error {
	for storeID, langcode := range a.Config.StoreLangcodes {
		store := &models.Store{StoreID: storeID, Langcode: locale.Normalize(langcode), Status: models.StoreStatusActive}
		if err := a.Stores.Upsert(ctx, store); err != nil {
			return fmt.Errorf("failed to seed store %s: %w", storeID, err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var firstErr error
	if err := a.Queues.Close(); err != nil {
		firstErr = err
	}
	if err := a.stockStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

type dbStockStore struct {
	*repository.StockRepository
}

func (dbStockStore) Close() error { return nil }
