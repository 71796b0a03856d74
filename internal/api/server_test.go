package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/logger"
	"catalogsync/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := &config.Config{
		APIHost:               "127.0.0.1",
		APIPort:               "0",
		StoreIDHeader:         "X-Store-Id",
		CORSOrigins:           []string{"https://shop.example"},
		CommerceBaseURL:       "http://127.0.0.1:1",
		CommerceTimeout:       time.Second,
		CommerceRateLimit:     10,
		DefaultLangcode:       "en",
		StoreLangcodes:        map[string]string{"1": "en", "2": "ar"},
		ProductDisplayType:    "product",
		ProductChunkSize:      50,
		CategoryVocabulary:    "product_category",
		CategoryRootID:        2,
		PromotionBatchSize:    50,
		PromotionTypes:        []string{"cart", "category"},
		QueueBackend:          config.QueueBackendDatabase,
		AttachQueue:           "promotion_attach",
		DetachQueue:           "promotion_detach",
		WorkerPollInterval:    time.Second,
		WorkerLease:           time.Minute,
		WorkerMaxAttempts:     3,
		StockMode:             config.StockModePush,
		StockBackend:          config.StockBackendDatabase,
		StockCacheMultiplier:  10 * time.Second,
		StockCacheMaxLifetime: time.Hour,
		StockCacheMinLifetime: 5 * time.Second,
		Env:                   "test",
	}
	require.NoError(t, cfg.Validate())

	a, err := app.Build(cfg, &database.Database{DB: testutil.NewDB(t)}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a.Server().Router()
}

func do(t *testing.T, router http.Handler, method, path, storeID string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if storeID != "" {
		req.Header.Set("X-Store-Id", storeID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func TestHealthz(t *testing.T) {
	router := newRouter(t)

	w, body := do(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestIngestProductsAndReadDisplay(t *testing.T) {
	router := newRouter(t)
	products := []map[string]interface{}{
		{"sku": "24-MB01", "name": "Joust Duffle Bag", "type": "simple", "status": 1, "price": "34.00"},
		{"sku": "24-MB02", "name": "Fusion Backpack", "type": "simple", "status": 1, "price": "59.00"},
	}

	w, body := do(t, router, http.MethodPost, "/api/v1/ingest/products", "1", products)
	require.Equal(t, http.StatusOK, w.Code)
	result := data(t, body)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, 2.0, result["created"])

	w, body = do(t, router, http.MethodPost, "/api/v1/ingest/products", "1", products)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, data(t, body)["unchanged"])

	w, body = do(t, router, http.MethodGet, "/api/v1/products/24-MB01/display", "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Joust Duffle Bag", data(t, body)["title"])

	w, _ = do(t, router, http.MethodGet, "/api/v1/products/missing/display", "1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestProductsRejectsNonArray(t *testing.T) {
	router := newRouter(t)

	w, _ := do(t, router, http.MethodPost, "/api/v1/ingest/products", "1", `{"sku":"A"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/ingest/products", "1", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestProductsRecordsIssues(t *testing.T) {
	router := newRouter(t)

	w, body := do(t, router, http.MethodPost, "/api/v1/ingest/products", "1", []map[string]interface{}{
		{"sku": "A", "name": "A", "type": "simple"},
		{"name": "no sku"},
		{"sku": "B", "name": "B", "status": 7},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, data(t, body)["skipped"])

	w, body = do(t, router, http.MethodGet, "/api/v1/issues?component=product&resolved=false", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	issues, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, issues, 2)

	id := issues[0].(map[string]interface{})["id"].(string)
	w, body = do(t, router, http.MethodPost, "/api/v1/issues/"+id+"/resolve", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, data(t, body)["is_resolved"])

	w, _ = do(t, router, http.MethodPost, "/api/v1/issues/missing/resolve", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestStock(t *testing.T) {
	router := newRouter(t)

	w, body := do(t, router, http.MethodPost, "/api/v1/ingest/stock", "1", map[string]interface{}{"sku": "A", "qty": 4, "is_in_stock": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, data(t, body)["processed"])

	w, body = do(t, router, http.MethodPost, "/api/v1/ingest/stock", "1", []map[string]interface{}{
		{"sku": "B", "qty": 0, "is_in_stock": true},
		{"qty": 3},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, data(t, body)["processed"])
	assert.Equal(t, 1.0, data(t, body)["skipped"])

	w, body = do(t, router, http.MethodGet, "/api/v1/products/A/stock", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.0, data(t, body)["quantity"])
	assert.Equal(t, true, data(t, body)["in_stock"])

	w, body = do(t, router, http.MethodGet, "/api/v1/products/B/stock", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, data(t, body)["in_stock"])

	w, body = do(t, router, http.MethodGet, "/api/v1/products/never-seen/stock", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, data(t, body)["quantity"])

	w, _ = do(t, router, http.MethodPost, "/api/v1/ingest/stock", "1", `[{"sku":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCart(t *testing.T) {
	router := newRouter(t)
	w, _ := do(t, router, http.MethodPost, "/api/v1/ingest/products", "1", []map[string]interface{}{
		{"sku": "MH01", "name": "Hoodie", "type": "configurable", "status": 1, "configured_child_skus": []string{"MH01-S"}},
		{"sku": "MH01-S", "name": "Hoodie S", "type": "simple", "status": 1, "visibility": 1},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := do(t, router, http.MethodPost, "/api/v1/products/MH01-S/cart", "1", map[string]interface{}{"qty": 2})
	require.Equal(t, http.StatusOK, w.Code)
	item := data(t, body)
	assert.Equal(t, "Hoodie - Hoodie S", item["display_name"])
	payload := item["payload"].(map[string]interface{})
	assert.Equal(t, "MH01", payload["sku"])
	assert.Equal(t, 2.0, payload["qty"])

	w, _ = do(t, router, http.MethodPost, "/api/v1/products/MH01/cart", "1", map[string]interface{}{"qty": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/products/MH01-S/cart", "1", map[string]interface{}{"qty": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/products/MH01-S/cart", "9", map[string]interface{}{"qty": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncPromotionsRejectsUnknownType(t *testing.T) {
	router := newRouter(t)

	w, _ := do(t, router, http.MethodPost, "/api/v1/sync/promotions?type=coupon", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ingest/products", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(t)
	do(t, router, http.MethodPost, "/api/v1/ingest/products", "1", []map[string]interface{}{{"sku": "A", "name": "A"}})

	w, _ := do(t, router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `catalogsync_items_total{component="product",outcome="created"} 1`)
}
