// Package promotion mirrors remote promotion rules and turns changes in
// their product lists into attach and detach work items.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catalogsync/internal/catalog"
	"catalogsync/internal/commerce"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/queue"
)

type Store interface {
	FindByRule(ctx context.Context, ruleID int64, promotionType models.PromotionType) ([]models.PromotionRecord, error)
	ListByTypes(ctx context.Context, types []models.PromotionType) ([]models.PromotionRecord, error)
	Create(ctx context.Context, promotion *models.PromotionRecord) error
	Save(ctx context.Context, promotion *models.PromotionRecord) error
	Delete(ctx context.Context, promotion *models.PromotionRecord) error
	UpsertLabel(ctx context.Context, promotionID, langcode, label string) error
	AttachedSKUs(ctx context.Context, promotionID string) ([]string, error)
}

type Source interface {
	GetPromotions(ctx context.Context, promotionType models.PromotionType) ([]commerce.Promotion, error)
}

type LocaleResolver interface {
	Langcode(ctx context.Context, storeID string) (string, bool)
	IsDefault(langcode string) bool
}

type Reconciler struct {
	store     Store
	source    Source
	queues    queue.Pair
	locales   LocaleResolver
	batchSize int
	logger    *logger.Logger
}

func NewReconciler(store Store, source Source, queues queue.Pair, locales LocaleResolver, batchSize int, logger *logger.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		source:    source,
		queues:    queues,
		locales:   locales,
		batchSize: batchSize,
		logger:    logger,
	}
}

// SyncPromotions is a full promotion sync of the given types: fetch,
// reconcile, then retire what the backend no longer reports. A fetch
// failure aborts before anything is written.
func (r *Reconciler) SyncPromotions(ctx context.Context, types []models.PromotionType) (*catalog.PromotionResult, error) {
	var all []commerce.Promotion
	validIDs := make(map[models.PromotionType][]int64, len(types))

	for _, t := range types {
		if !t.Valid() {
			return nil, fmt.Errorf("unknown promotion type %q", t)
		}
		fetched, err := r.source.GetPromotions(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s promotions: %w", t, err)
		}
		ids := make([]int64, 0, len(fetched))
		for i := range fetched {
			fetched[i].Type = t
			ids = append(ids, fetched[i].RuleID)
		}
		validIDs[t] = ids
		all = append(all, fetched...)
	}

	result, err := r.ProcessPromotions(ctx, all)
	if err != nil {
		return result, err
	}

	for _, t := range types {
		deleted, err := r.DeletePromotions(ctx, []models.PromotionType{t}, validIDs[t])
		result.Deleted += deleted
		if err != nil {
			result.AddError(string(t), "retire failed", err)
		}
	}

	r.logger.Info("Promotion sync: %d fetched, %d created, %d updated, %d skipped, %d deleted, %d attach and %d detach batches",
		result.Fetched, result.Created, result.Updated, result.Skipped, result.Deleted, result.AttachBatches, result.DetachBatches)
	return result, nil
}

// DrainQueues discards every pending attach and detach item. It returns -1
// when a backend cannot count what it discarded.
func (r *Reconciler) DrainQueues(ctx context.Context) (int64, error) {
	var total int64
	for _, q := range r.queues.All() {
		n, err := q.Drain(ctx)
		if err != nil {
			return total, fmt.Errorf("failed to drain %s: %w", q.Name(), err)
		}
		if n < 0 || total < 0 {
			total = -1
			continue
		}
		total += n
	}
	return total, nil
}

// ProcessPromotions drains both queues and then reconciles each promotion,
// so no batch from an earlier run can interleave with this run's batches.
func (r *Reconciler) ProcessPromotions(ctx context.Context, promotions []commerce.Promotion) (*catalog.PromotionResult, error) {
	result := &catalog.PromotionResult{Fetched: len(promotions)}

	drained, err := r.DrainQueues(ctx)
	if err != nil {
		return result, err
	}
	result.DrainedItems = drained

	for _, p := range promotions {
		r.processOne(ctx, p, result)
	}
	return result, nil
}

func (r *Reconciler) processOne(ctx context.Context, p commerce.Promotion, result *catalog.PromotionResult) {
	key := fmt.Sprintf("%s:%d", p.Type, p.RuleID)
	skus, extra := collectSKUs(p)

	existing, err := r.store.FindByRule(ctx, p.RuleID, p.Type)
	if err != nil {
		r.logger.Error("Failed to load promotion %s: %v", key, err)
		result.AddError(key, "lookup failed", err)
		return
	}
	if len(existing) > 1 {
		r.logger.Error("CRITICAL: %d records for promotion rule %d of type %s, skipping", len(existing), p.RuleID, p.Type)
		result.Skipped++
		result.AddError(key, fmt.Sprintf("%d records share this rule id", len(existing)), nil)
		return
	}

	defaultLabel, localized := r.splitLabels(ctx, p)

	var record *models.PromotionRecord
	if len(existing) == 1 {
		record = &existing[0]
		if applyMetadata(record, p, defaultLabel) {
			if err := r.store.Save(ctx, record); err != nil {
				r.logger.Error("Failed to update promotion %s: %v", key, err)
				result.AddError(key, "save failed", err)
				return
			}
			result.Updated++
		}

		attached, err := r.store.AttachedSKUs(ctx, record.ID)
		if err != nil {
			r.logger.Error("Failed to load attached SKUs of promotion %s: %v", key, err)
			result.AddError(key, "lookup failed", err)
			return
		}
		detach := Difference(attached, skus)
		for _, batch := range catalog.Chunk(detach, r.batchSize) {
			item := queue.WorkItem{PromotionID: record.ID, Operation: queue.OperationDetach, SKUs: batch}
			if err := r.queues.Detach.Enqueue(ctx, item); err != nil {
				r.logger.Error("Failed to enqueue detach batch for promotion %s: %v", key, err)
				result.AddError(key, "enqueue failed", err)
				continue
			}
			result.DetachBatches++
		}
	} else {
		record = &models.PromotionRecord{RuleID: p.RuleID, Type: p.Type}
		applyMetadata(record, p, defaultLabel)
		if err := r.store.Create(ctx, record); err != nil {
			r.logger.Error("Failed to create promotion %s: %v", key, err)
			result.AddError(key, "save failed", err)
			return
		}
		result.Created++
	}

	// attach is idempotent, so the full fetched set is always re-sent
	for _, batch := range catalog.Chunk(skus, r.batchSize) {
		item := queue.WorkItem{PromotionID: record.ID, Operation: queue.OperationAttach, SKUs: batch}
		if len(extra) > 0 {
			item.ExtraData = make(map[string]queue.ItemData, len(batch))
			for _, sku := range batch {
				if data, ok := extra[sku]; ok {
					item.ExtraData[sku] = data
				}
			}
		}
		if err := r.queues.Attach.Enqueue(ctx, item); err != nil {
			r.logger.Error("Failed to enqueue attach batch for promotion %s: %v", key, err)
			result.AddError(key, "enqueue failed", err)
			continue
		}
		result.AttachBatches++
	}

	for langcode, label := range localized {
		if err := r.store.UpsertLabel(ctx, record.ID, langcode, label); err != nil {
			r.logger.Error("Failed to store %s label of promotion %s: %v", langcode, key, err)
			result.AddError(key, "label failed", err)
		}
	}
}

// splitLabels separates the default-locale label from the others.
func (r *Reconciler) splitLabels(ctx context.Context, p commerce.Promotion) (string, map[string]string) {
	var defaultLabel string
	localized := make(map[string]string)
	for _, l := range p.Labels {
		langcode, ok := r.locales.Langcode(ctx, l.StoreID)
		if !ok {
			r.logger.Warn("Promotion %d: ignoring label for unknown store %q", p.RuleID, l.StoreID)
			continue
		}
		if r.locales.IsDefault(langcode) {
			defaultLabel = l.StoreLabel
			continue
		}
		localized[langcode] = l.StoreLabel
	}
	return defaultLabel, localized
}

func applyMetadata(record *models.PromotionRecord, p commerce.Promotion, label string) bool {
	changed := false
	set := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&record.Name, p.Name)
	set(&record.Description, p.Description)
	set(&record.DiscountType, p.DiscountType)
	set(&record.CouponCode, p.CouponCode)
	set(&record.Label, label)
	if !record.DiscountValue.Equal(p.DiscountAmount) {
		record.DiscountValue = p.DiscountAmount
		changed = true
	}
	if record.Status != p.Status {
		record.Status = p.Status
		changed = true
	}
	return changed
}

// collectSKUs returns the promotion's SKUs in first-seen order and, for
// category promotions, the per-SKU final price.
func collectSKUs(p commerce.Promotion) ([]string, map[string]queue.ItemData) {
	skus := make([]string, 0, len(p.Products))
	seen := make(map[string]bool, len(p.Products))
	var extra map[string]queue.ItemData
	for _, product := range p.Products {
		sku := strings.TrimSpace(product.SKU)
		if sku == "" || seen[sku] {
			continue
		}
		seen[sku] = true
		skus = append(skus, sku)
		if p.Type == models.PromotionTypeCategory && product.FinalPrice != nil {
			if extra == nil {
				extra = make(map[string]queue.ItemData)
			}
			price := *product.FinalPrice
			extra[sku] = queue.ItemData{FinalPrice: &price}
		}
	}
	return skus, extra
}

// Difference returns the elements of a that are not in b, in a's order.
func Difference(a, b []string) []string {
	exclude := make(map[string]bool, len(b))
	for _, s := range b {
		exclude[s] = true
	}
	var out []string
	for _, s := range a {
		if !exclude[s] {
			out = append(out, s)
		}
	}
	return out
}

// DeletePromotions removes the local promotions of types whose rule id is
// not in validIDs, together with their labels and product memberships.
func (r *Reconciler) DeletePromotions(ctx context.Context, types []models.PromotionType, validIDs []int64) (int, error) {
	records, err := r.store.ListByTypes(ctx, types)
	if err != nil {
		return 0, fmt.Errorf("failed to list promotions: %w", err)
	}

	valid := make(map[int64]bool, len(validIDs))
	for _, id := range validIDs {
		valid[id] = true
	}

	deleted := 0
	var errs []error
	for i := range records {
		record := &records[i]
		if valid[record.RuleID] {
			continue
		}
		if err := r.store.Delete(ctx, record); err != nil {
			r.logger.Error("Failed to delete promotion %s:%d: %v", record.Type, record.RuleID, err)
			errs = append(errs, err)
			continue
		}
		r.logger.Info("Deleted promotion %s:%d", record.Type, record.RuleID)
		deleted++
	}
	return deleted, errors.Join(errs...)
}
