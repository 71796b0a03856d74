package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", 5*time.Second, 0, logger.NewNop())
}

func TestGetPromotions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/promotions", r.URL.Path)
		assert.Equal(t, "category", r.URL.Query().Get("type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"rule_id": 7, "name": "Summer", "discount_amount": "10.5",
			"products": [{"product_sku": "A", "final_price": "9.99"}, {"product_sku": "B"}],
			"labels": [{"store_id": "2", "store_label": "صيف"}]}]`))
	})

	promotions, err := client.GetPromotions(context.Background(), models.PromotionTypeCategory)
	require.NoError(t, err)
	require.Len(t, promotions, 1)

	p := promotions[0]
	assert.Equal(t, int64(7), p.RuleID)
	assert.Equal(t, "10.5", p.DiscountAmount.String())
	require.Len(t, p.Products, 2)
	require.NotNil(t, p.Products[0].FinalPrice)
	assert.Equal(t, "9.99", p.Products[0].FinalPrice.String())
	assert.Nil(t, p.Products[1].FinalPrice)
	assert.Equal(t, "2", p.Labels[0].StoreID)
}

func TestProductFullSyncDecodesPartialItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("store_id"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`{"items": [{"sku": "24-MB01", "price": "59.88"}], "total": 3}`))
	})

	page, err := client.ProductFullSync(context.Background(), "1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	item := page.Items[0]
	assert.Equal(t, "24-MB01", item.SKU)
	assert.Nil(t, item.Name)
	assert.Nil(t, item.CategoryIDs)
	require.NotNil(t, item.Price)
	assert.Equal(t, "59.88", item.Price.String())
	assert.False(t, page.HasMore())
}

func TestGetCategoryTree(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("root"))
		json.NewEncoder(w).Encode(Category{ID: 2, Children: []Category{{ID: 3, ParentID: 2, Name: "Gear"}}})
	})

	root := int64(2)
	tree, err := client.GetCategoryTree(context.Background(), &root)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tree.ID)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "Gear", tree.Children[0].Name)
}

func TestGetStockNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.GetStock(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestServerErrorIsReported(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := client.GetPromotions(context.Background(), models.PromotionTypeCart)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestStockMessageQty(t *testing.T) {
	assert.Equal(t, 0, (&StockMessage{Quantity: -3}).Qty())
	assert.Equal(t, 4, (&StockMessage{Quantity: 4.7}).Qty())
	assert.Equal(t, MaxQty, (&StockMessage{Quantity: 1e30}).Qty())
	assert.Equal(t, MaxQty, (&StockMessage{Quantity: math.Inf(1)}).Qty())
	assert.Equal(t, 0, (&StockMessage{Quantity: math.NaN()}).Qty())
}
