package product

import (
	"context"
	"testing"

	"catalogsync/internal/catalog"
	"catalogsync/internal/commerce"
	"catalogsync/internal/locale"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/repository"
	"catalogsync/internal/testutil"
	"catalogsync/internal/validation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubCategories map[int64]bool

func (s stubCategories) Lookup(ctx context.Context, vocabulary string, commerceID int64) (*models.CategoryNode, error) {
	if !s[commerceID] {
		return nil, repository.ErrNotFound
	}
	return &models.CategoryNode{Vocabulary: vocabulary, CommerceID: commerceID}, nil
}

type stubStock struct {
	messages []commerce.StockMessage
}

func (s *stubStock) ProcessStockMessage(ctx context.Context, msg commerce.StockMessage, storeID string) error {
	msg.StoreID = storeID
	s.messages = append(s.messages, msg)
	return nil
}

type fixture struct {
	db       *gorm.DB
	r        *Reconciler
	products *repository.ProductRepository
	displays *repository.DisplayRepository
	stock    *stubStock
}

func newFixture(t *testing.T, mutate func(*Settings)) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	settings := Settings{DisplayType: "product", CategoryVocabulary: "product_category"}
	if mutate != nil {
		mutate(&settings)
	}
	f := &fixture{
		db:       db,
		products: repository.NewProductRepository(db),
		displays: repository.NewDisplayRepository(db),
		stock:    &stubStock{},
	}
	locales := locale.NewResolver("en", map[string]string{"1": "en", "2": "ar"}, nil)
	f.r = NewReconciler(f.products, f.displays, stubCategories{10: true, 11: true}, f.stock, locales,
		validation.New(logger.NewNop()), settings, logger.NewNop())
	return f
}

func (f *fixture) sync(t *testing.T, storeID string, opts SyncOptions, items ...commerce.Product) *catalog.ProductResult {
	t.Helper()
	result, err := f.r.SynchronizeProducts(context.Background(), items, storeID, opts)
	require.NoError(t, err)
	return result
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func ptr[T any](v T) *T { return &v }

func bag() commerce.Product {
	return commerce.Product{
		SKU:    "24-MB01",
		Type:   ptr("simple"),
		Name:   ptr("Bag"),
		Price:  ptr(decimal.RequireFromString("59.88")),
		Status: ptr(1),
	}
}

func TestSynchronizeProductsIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	first := f.sync(t, "1", SyncOptions{}, bag())
	assert.True(t, first.Success)
	assert.Equal(t, 1, first.Created)
	assert.Empty(t, first.Errors)
	assert.Equal(t, int64(1), f.count(t, &models.ProductRecord{}))

	second := f.sync(t, "1", SyncOptions{}, bag())
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, int64(1), f.count(t, &models.ProductRecord{}))
	assert.Equal(t, int64(1), f.count(t, &models.DisplayRecord{}))

	changed := bag()
	changed.Price = ptr(decimal.RequireFromString("49.00"))
	third := f.sync(t, "1", SyncOptions{}, changed)
	assert.Equal(t, 0, third.Created)
	assert.Equal(t, 1, third.Updated)

	record, err := f.products.FindBySKU(context.Background(), "24-MB01", "en")
	require.NoError(t, err)
	assert.True(t, record.Price.Equal(decimal.RequireFromString("49")))
	assert.Equal(t, "Bag", record.Name)
}

func TestSynchronizeProductsPartialFeedKeepsFields(t *testing.T) {
	f := newFixture(t, nil)
	item := bag()
	item.Attributes = map[string]interface{}{"color": "black", "weight": 1.2}
	f.sync(t, "1", SyncOptions{}, item)

	result := f.sync(t, "1", SyncOptions{},
		commerce.Product{SKU: "24-MB01", Price: ptr(decimal.RequireFromString("10"))},
		commerce.Product{SKU: "24-MB01", Attributes: map[string]interface{}{"size": "M"}},
	)
	assert.Equal(t, 2, result.Updated)

	record, err := f.products.FindBySKU(context.Background(), "24-MB01", "en")
	require.NoError(t, err)
	assert.Equal(t, "Bag", record.Name)
	assert.Equal(t, models.ProductTypeSimple, record.Type)
	assert.True(t, record.Price.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "black", record.Attributes["color"])
	assert.Equal(t, "M", record.Attributes["size"])
	assert.EqualValues(t, 1.2, record.Attributes["weight"])
}

func TestSynchronizeProductsEmptyPayload(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.r.SynchronizeProducts(context.Background(), nil, "1", SyncOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], catalog.ErrEmptyPayload)
}

func TestSynchronizeProductsSkipsBadItems(t *testing.T) {
	f := newFixture(t, nil)
	other := bag()
	other.SKU = "24-MB02"
	other.StoreID = "404"

	result := f.sync(t, "1", SyncOptions{},
		commerce.Product{SKU: ""},
		other,
		bag(),
	)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "item[0]", result.Errors[0].Key)
	assert.Equal(t, "24-MB02", result.Errors[1].Key)
}

func TestSynchronizeProductsDropsUnknownCategories(t *testing.T) {
	f := newFixture(t, nil)
	item := bag()
	item.CategoryIDs = []int64{10, 99, 11, 10}

	f.sync(t, "1", SyncOptions{}, item)

	record, err := f.products.FindBySKU(context.Background(), "24-MB01", "en")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, []int64(record.CategoryIDs))

	again := f.sync(t, "1", SyncOptions{}, item)
	assert.Equal(t, 1, again.Unchanged)
}

func TestSynchronizeProductsTranslatesDisplay(t *testing.T) {
	f := newFixture(t, nil)
	f.sync(t, "1", SyncOptions{}, bag())

	arabic := bag()
	arabic.Name = ptr("حقيبة")
	result := f.sync(t, "2", SyncOptions{}, arabic)
	assert.Equal(t, 1, result.Created)

	assert.Equal(t, int64(2), f.count(t, &models.ProductRecord{}))
	assert.Equal(t, int64(1), f.count(t, &models.DisplayRecord{}))

	display, err := f.displays.FindBySKU(context.Background(), "product", "24-MB01")
	require.NoError(t, err)
	assert.Equal(t, "Bag", display.Title)
	assert.Equal(t, "en", display.Langcode)

	translation, err := f.displays.FindTranslation(context.Background(), display.ID, "ar")
	require.NoError(t, err)
	assert.Equal(t, "حقيبة", translation.Title)
}

func TestSynchronizeProductsSKUAsTitle(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.UseSKUAsTitle = true })
	f.sync(t, "1", SyncOptions{}, bag())

	display, err := f.displays.FindBySKU(context.Background(), "product", "24-MB01")
	require.NoError(t, err)
	assert.Equal(t, "24-MB01", display.Title)
}

func TestSynchronizeProductsNotVisibleHasNoDisplay(t *testing.T) {
	f := newFixture(t, nil)
	child := commerce.Product{SKU: "MJ01-S", Type: ptr("simple"), Name: ptr("Jacket S"), Visibility: ptr(models.VisibilityNotVisible)}

	f.sync(t, "1", SyncOptions{}, child)

	_, err := f.displays.FindBySKU(context.Background(), "product", "MJ01-S")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConfigurableChildResolvesInEitherOrder(t *testing.T) {
	ctx := context.Background()
	child := commerce.Product{SKU: "MJ01-S", Type: ptr("simple"), Name: ptr("Jacket S"), Visibility: ptr(models.VisibilityNotVisible)}
	parent := commerce.Product{
		SKU:                 "MJ01",
		Type:                ptr("configurable"),
		Name:                ptr("Jacket"),
		ConfiguredChildSkus: []string{"MJ01-S", "MJ01-M"},
	}

	orders := map[string][]commerce.Product{
		"child first":  {child, parent},
		"parent first": {parent, child},
	}
	for name, items := range orders {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			for _, item := range items {
				f.sync(t, "1", SyncOptions{}, item)
			}

			display, err := f.r.ResolveDisplay(ctx, NewRunCache(0), "MJ01-S", "en")
			require.NoError(t, err)
			assert.Equal(t, "MJ01", display.SKU)

			stored, err := f.products.FindBySKU(ctx, "MJ01-S", "en")
			require.NoError(t, err)
			assert.Empty(t, stored.ConfiguredChildSkus)

			parents, err := f.products.FindParentSKUs(ctx, "MJ01-M", "en")
			require.NoError(t, err)
			assert.Equal(t, []string{"MJ01"}, parents)
		})
	}
}

func TestConfigurableChildListReplaced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	parent := commerce.Product{SKU: "MJ01", Type: ptr("configurable"), Name: ptr("Jacket"), ConfiguredChildSkus: []string{"MJ01-S", "MJ01-M"}}
	f.sync(t, "1", SyncOptions{}, parent)

	parent.ConfiguredChildSkus = []string{"MJ01-M"}
	result := f.sync(t, "1", SyncOptions{}, parent)
	assert.Equal(t, 1, result.Updated)

	parents, err := f.products.FindParentSKUs(ctx, "MJ01-S", "en")
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestResolveDisplayFallsBackToOwnDisplay(t *testing.T) {
	f := newFixture(t, nil)
	f.sync(t, "1", SyncOptions{}, bag())

	display, err := f.r.ResolveDisplay(context.Background(), nil, "24-MB01", "en")
	require.NoError(t, err)
	assert.Equal(t, "24-MB01", display.SKU)

	_, err = f.r.ResolveDisplay(context.Background(), nil, "missing", "en")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSynchronizeProductsForwardsEmbeddedStock(t *testing.T) {
	f := newFixture(t, nil)
	item := bag()
	item.Stock = &commerce.StockMessage{Quantity: 4, IsInStock: true}

	f.sync(t, "1", SyncOptions{}, item)

	require.Len(t, f.stock.messages, 1)
	assert.Equal(t, "24-MB01", f.stock.messages[0].SKU)
	assert.Equal(t, "1", f.stock.messages[0].StoreID)
}

func TestFullSyncDeletesMissingAndDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *Settings) { s.DeleteDisabledSKUs = true })

	a, b, c := bag(), bag(), bag()
	b.SKU, c.SKU = "24-MB02", "24-MB03"
	f.sync(t, "1", SyncOptions{}, a, b, c)
	f.sync(t, "2", SyncOptions{}, c)
	assert.Equal(t, int64(3), f.count(t, &models.DisplayRecord{}))

	// incremental syncs never delete
	incremental := f.sync(t, "1", SyncOptions{}, a)
	assert.Zero(t, incremental.Deleted)

	b.Status = ptr(int(models.ProductStatusDisabled))
	result := f.sync(t, "1", SyncOptions{FullSync: true}, a, b)
	assert.Equal(t, 2, result.Deleted)

	_, err := f.products.FindBySKU(ctx, "24-MB02", "en")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.products.FindBySKU(ctx, "24-MB03", "en")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// the ar variant of 24-MB03 still references its display
	_, err = f.products.FindBySKU(ctx, "24-MB03", "ar")
	require.NoError(t, err)
	_, err = f.displays.FindBySKU(ctx, "product", "24-MB03")
	require.NoError(t, err)

	_, err = f.displays.FindBySKU(ctx, "product", "24-MB02")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.displays.FindBySKU(ctx, "product", "24-MB01")
	require.NoError(t, err)
}

func TestFullSyncKeepsItemsThatFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *Settings) { s.DeleteDisabledSKUs = true })

	a, b, c := bag(), bag(), bag()
	b.SKU, c.SKU = "24-MB02", "24-MB03"
	f.sync(t, "1", SyncOptions{}, a, b, c)

	b.Status = ptr(3)
	result := f.sync(t, "1", SyncOptions{FullSync: true}, a, b)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Deleted)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "24-MB02", result.Errors[0].Key)

	_, err := f.products.FindBySKU(ctx, "24-MB02", "en")
	require.NoError(t, err)
	_, err = f.displays.FindBySKU(ctx, "product", "24-MB02")
	require.NoError(t, err)
	_, err = f.products.FindBySKU(ctx, "24-MB03", "en")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFullSyncWithoutPolicyKeepsEverything(t *testing.T) {
	f := newFixture(t, nil)
	a, b := bag(), bag()
	b.SKU = "24-MB02"
	f.sync(t, "1", SyncOptions{}, a, b)

	result := f.sync(t, "1", SyncOptions{FullSync: true}, a)
	assert.Zero(t, result.Deleted)
	assert.Equal(t, int64(2), f.count(t, &models.ProductRecord{}))
}
