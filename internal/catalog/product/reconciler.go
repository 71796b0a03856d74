// Package product reconciles raw product feed items into product and display
// records.
package product

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"catalogsync/internal/catalog"
	"catalogsync/internal/commerce"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"
)

type ProductStore interface {
	ParentLookup
	Create(ctx context.Context, product *models.ProductRecord) error
	Save(ctx context.Context, product *models.ProductRecord) error
	ListSKUs(ctx context.Context, langcode string) ([]string, error)
	CountBySKU(ctx context.Context, sku string) (int64, error)
	Delete(ctx context.Context, product *models.ProductRecord) error
	ReplaceConfigurableLinks(ctx context.Context, parentSKU, langcode string, childSKUs []string) error
}

type DisplayStore interface {
	FindBySKU(ctx context.Context, displayType, sku string) (*models.DisplayRecord, error)
	Create(ctx context.Context, display *models.DisplayRecord) error
	FindTranslation(ctx context.Context, displayID, langcode string) (*models.DisplayTranslation, error)
	CreateTranslation(ctx context.Context, translation *models.DisplayTranslation) error
	DeleteTranslation(ctx context.Context, displayID, langcode string) error
	Delete(ctx context.Context, display *models.DisplayRecord) error
}

type CategoryLookup interface {
	Lookup(ctx context.Context, vocabulary string, commerceID int64) (*models.CategoryNode, error)
}

type StockWriter interface {
	ProcessStockMessage(ctx context.Context, msg commerce.StockMessage, storeID string) error
}

type LocaleResolver interface {
	Langcode(ctx context.Context, storeID string) (string, bool)
	IsDefault(langcode string) bool
}

type ItemValidator interface {
	ValidateProduct(p commerce.Product) error
}

type Settings struct {
	DisplayType        string
	CategoryVocabulary string
	UseSKUAsTitle      bool
	DeleteDisabledSKUs bool
	CacheSize          int
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DisplayType:        cfg.ProductDisplayType,
		CategoryVocabulary: cfg.CategoryVocabulary,
		UseSKUAsTitle:      cfg.UseSKUAsTitle,
		DeleteDisabledSKUs: cfg.DeleteDisabledSKUs,
	}
}

// SyncOptions qualifies one SynchronizeProducts call.
type SyncOptions struct {
	// FullSync marks the payload as the complete catalog of the store,
	// which allows deletion by omission.
	FullSync bool
}

type Reconciler struct {
	products   ProductStore
	displays   DisplayStore
	categories CategoryLookup
	stock      StockWriter
	locales    LocaleResolver
	validator  ItemValidator
	settings   Settings
	logger     *logger.Logger
}

func NewReconciler(products ProductStore, displays DisplayStore, categories CategoryLookup, stock StockWriter, locales LocaleResolver, validator ItemValidator, settings Settings, logger *logger.Logger) *Reconciler {
	return &Reconciler{
		products:   products,
		displays:   displays,
		categories: categories,
		stock:      stock,
		locales:    locales,
		validator:  validator,
		settings:   settings,
		logger:     logger,
	}
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

// SynchronizeProducts upserts every item. A bad item is recorded in the
// result and never aborts the batch; only an empty payload is unsuccessful.
func (r *Reconciler) SynchronizeProducts(ctx context.Context, items []commerce.Product, storeID string, opts SyncOptions) (*catalog.ProductResult, error) {
	result := &catalog.ProductResult{}
	if len(items) == 0 {
		result.AddError("", "empty payload", catalog.ErrEmptyPayload)
		return result, nil
	}
	result.Success = true

	cache := NewRunCache(r.settings.CacheSize)
	// langcode -> sku -> enabled after this run
	seen := make(map[string]map[string]bool)
	// skus present in the payload that could not be applied
	held := make(map[string]bool)

	for i, item := range items {
		item.SKU = strings.TrimSpace(item.SKU)
		key := item.SKU
		if key == "" {
			key = fmt.Sprintf("item[%d]", i)
		}

		if r.validator != nil {
			if err := r.validator.ValidateProduct(item); err != nil {
				r.logger.Warn("Skipping product %s: %v", key, err)
				held[item.SKU] = true
				result.Skipped++
				result.AddError(key, "invalid item", err)
				continue
			}
		}

		store := item.StoreID
		if store == "" {
			store = storeID
		}
		langcode, ok := r.locales.Langcode(ctx, store)
		if !ok {
			r.logger.Warn("Skipping product %s: no langcode for store %q", item.SKU, store)
			held[item.SKU] = true
			result.Skipped++
			result.AddError(item.SKU, fmt.Sprintf("no langcode for store %q", store), nil)
			continue
		}

		record, o, err := r.syncItem(ctx, cache, item, langcode, store, result)
		if err != nil {
			r.logger.Error("Failed to sync product %s (%s): %v", item.SKU, langcode, err)
			held[item.SKU] = true
			result.AddError(item.SKU, "save failed", err)
			continue
		}
		switch o {
		case outcomeCreated:
			result.Created++
		case outcomeUpdated:
			result.Updated++
		default:
			result.Unchanged++
		}

		if seen[langcode] == nil {
			seen[langcode] = make(map[string]bool)
		}
		seen[langcode][record.SKU] = record.Enabled()
	}

	if opts.FullSync && r.settings.DeleteDisabledSKUs {
		for langcode, skus := range seen {
			if err := r.deleteMissing(ctx, langcode, skus, held, result); err != nil {
				return result, err
			}
		}
	}

	r.logger.Info("Product sync for store %s: %d created, %d updated, %d unchanged, %d skipped, %d deleted, %d errors",
		storeID, result.Created, result.Updated, result.Unchanged, result.Skipped, result.Deleted, len(result.Errors))
	return result, nil
}

func (r *Reconciler) syncItem(ctx context.Context, cache *RunCache, item commerce.Product, langcode, storeID string, result *catalog.ProductResult) (*models.ProductRecord, outcome, error) {
	var categoryIDs []int64
	if item.CategoryIDs != nil {
		categoryIDs = r.resolveCategories(ctx, cache, item.SKU, item.CategoryIDs)
	}

	record, err := r.products.FindBySKU(ctx, item.SKU, langcode)
	var o outcome
	switch {
	case errors.Is(err, repository.ErrNotFound):
		record = &models.ProductRecord{
			SKU:        item.SKU,
			Langcode:   langcode,
			StoreID:    storeID,
			Type:       models.ProductTypeSimple,
			Status:     models.ProductStatusEnabled,
			Visibility: models.VisibilityCatalogSearch,
		}
		merge(record, item, categoryIDs)
		if err := r.products.Create(ctx, record); err != nil {
			return nil, o, err
		}
		o = outcomeCreated
	case err != nil:
		return nil, o, fmt.Errorf("failed to load product: %w", err)
	default:
		changed := false
		if record.StoreID == "" && storeID != "" {
			record.StoreID = storeID
			changed = true
		}
		if merge(record, item, categoryIDs) || changed {
			if err := r.products.Save(ctx, record); err != nil {
				return nil, o, err
			}
			o = outcomeUpdated
		}
	}

	if record.Type == models.ProductTypeConfigurable && (o == outcomeCreated || item.ConfiguredChildSkus != nil) {
		if err := r.products.ReplaceConfigurableLinks(ctx, record.SKU, langcode, record.ConfiguredChildSkus); err != nil {
			return record, o, fmt.Errorf("failed to store child skus: %w", err)
		}
		for _, child := range record.ConfiguredChildSkus {
			cache.Forget(child, langcode)
		}
	}

	if err := r.ensureDisplay(ctx, record); err != nil {
		r.logger.Error("Failed to create display for %s (%s): %v", record.SKU, langcode, err)
		result.AddError(record.SKU, "display failed", err)
	}

	if item.Stock != nil && r.stock != nil {
		msg := *item.Stock
		if msg.SKU == "" {
			msg.SKU = record.SKU
		}
		if err := r.stock.ProcessStockMessage(ctx, msg, storeID); err != nil {
			r.logger.Error("Failed to cache stock for %s: %v", record.SKU, err)
			result.AddError(record.SKU, "stock failed", err)
		}
	}

	return record, o, nil
}

// merge copies the fields item supplies onto record and reports whether
// anything changed. Fields the item omits are left as stored.
func merge(record *models.ProductRecord, item commerce.Product, categoryIDs []int64) bool {
	changed := false
	if item.Name != nil && *item.Name != record.Name {
		record.Name = *item.Name
		changed = true
	}
	if item.Type != nil {
		if t := models.ProductType(strings.TrimSpace(*item.Type)); t != record.Type {
			record.Type = t
			changed = true
		}
	}
	if item.Price != nil && !item.Price.Equal(record.Price) {
		record.Price = *item.Price
		changed = true
	}
	if item.FinalPrice != nil && !item.FinalPrice.Equal(record.FinalPrice) {
		record.FinalPrice = *item.FinalPrice
		changed = true
	}
	if item.Status != nil && models.ProductStatus(*item.Status) != record.Status {
		record.Status = models.ProductStatus(*item.Status)
		changed = true
	}
	if item.Visibility != nil && *item.Visibility != record.Visibility {
		record.Visibility = *item.Visibility
		changed = true
	}
	for key, value := range item.Attributes {
		if record.Attributes == nil {
			record.Attributes = map[string]interface{}{}
		}
		current, ok := record.Attributes[key]
		if !ok || !sameJSON(current, value) {
			record.Attributes[key] = value
			changed = true
		}
	}
	if item.CategoryIDs != nil && !slices.Equal([]int64(record.CategoryIDs), categoryIDs) {
		record.CategoryIDs = categoryIDs
		changed = true
	}
	if item.ConfiguredChildSkus != nil && record.Type == models.ProductTypeConfigurable &&
		!slices.Equal([]string(record.ConfiguredChildSkus), item.ConfiguredChildSkus) {
		record.ConfiguredChildSkus = item.ConfiguredChildSkus
		changed = true
	}
	return changed
}

// sameJSON compares two decoded JSON values by their encoding, so 3 and
// 3.0 or maps in different order compare equal.
func sameJSON(a, b interface{}) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// resolveCategories keeps the ids that match a local category node.
func (r *Reconciler) resolveCategories(ctx context.Context, cache *RunCache, sku string, ids []int64) []int64 {
	resolved := make([]int64, 0, len(ids))
	for _, id := range ids {
		node, ok := cache.Category(id)
		if !ok {
			found, err := r.categories.Lookup(ctx, r.settings.CategoryVocabulary, id)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				r.logger.Error("Failed to look up category %d for %s: %v", id, sku, err)
				continue
			}
			node = found
			cache.SetCategory(id, node)
		}
		if node == nil {
			r.logger.Warn("Product %s: category %d not found, dropping it", sku, id)
			continue
		}
		if !slices.Contains(resolved, id) {
			resolved = append(resolved, id)
		}
	}
	return resolved
}

// ensureDisplay creates the display for a new SKU and the translation for
// a new langcode. Products that are not visible individually get none.
func (r *Reconciler) ensureDisplay(ctx context.Context, record *models.ProductRecord) error {
	if record.Visibility == models.VisibilityNotVisible {
		return nil
	}

	display, err := r.displays.FindBySKU(ctx, r.settings.DisplayType, record.SKU)
	if errors.Is(err, repository.ErrNotFound) {
		display = &models.DisplayRecord{
			DisplayType: r.settings.DisplayType,
			SKU:         record.SKU,
			Title:       r.title(record),
			Langcode:    record.Langcode,
		}
		if err := r.displays.Create(ctx, display); err != nil {
			return err
		}
		r.logger.Debug("Created display %s for %s", display.ID, record.SKU)
		return nil
	}
	if err != nil {
		return err
	}

	if display.Langcode == record.Langcode {
		return nil
	}
	_, err = r.displays.FindTranslation(ctx, display.ID, record.Langcode)
	if errors.Is(err, repository.ErrNotFound) {
		return r.displays.CreateTranslation(ctx, &models.DisplayTranslation{
			DisplayID: display.ID,
			Langcode:  record.Langcode,
			Title:     r.title(record),
		})
	}
	return err
}

func (r *Reconciler) title(record *models.ProductRecord) string {
	if r.settings.UseSKUAsTitle || record.Name == "" {
		return record.SKU
	}
	return record.Name
}

// deleteMissing removes SKUs of langcode that the full payload omitted or
// reported as disabled. Held SKUs were in the payload but failed, so they
// are kept as stored.
func (r *Reconciler) deleteMissing(ctx context.Context, langcode string, enabled, held map[string]bool, result *catalog.ProductResult) error {
	known, err := r.products.ListSKUs(ctx, langcode)
	if err != nil {
		return fmt.Errorf("failed to list products for %s: %w", langcode, err)
	}

	for _, sku := range known {
		if isEnabled, ok := enabled[sku]; (ok && isEnabled) || held[sku] {
			continue
		}
		if err := r.deleteSKU(ctx, sku, langcode); err != nil {
			r.logger.Error("Failed to delete product %s (%s): %v", sku, langcode, err)
			result.AddError(sku, "delete failed", err)
			continue
		}
		r.logger.Info("Deleted product %s (%s)", sku, langcode)
		result.Deleted++
	}
	return nil
}

func (r *Reconciler) deleteSKU(ctx context.Context, sku, langcode string) error {
	record, err := r.products.FindBySKU(ctx, sku, langcode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.products.Delete(ctx, record); err != nil {
		return err
	}

	display, err := r.displays.FindBySKU(ctx, r.settings.DisplayType, sku)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	remaining, err := r.products.CountBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return r.displays.Delete(ctx, display)
	}
	if display.Langcode != langcode {
		return r.displays.DeleteTranslation(ctx, display.ID, langcode)
	}
	return nil
}
