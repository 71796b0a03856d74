package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalogsync/internal/commerce"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/repository"
	"catalogsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	stock map[string]commerce.StockMessage
	calls int
	err   error
}

func (s *stubSource) GetStock(ctx context.Context, sku string) (*commerce.StockMessage, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	msg, ok := s.stock[sku]
	if !ok {
		return nil, commerce.ErrNotFound
	}
	return &msg, nil
}

func settings(mode string) Settings {
	return Settings{
		Mode:        mode,
		Multiplier:  10 * time.Second,
		MaxLifetime: time.Hour,
		MinLifetime: 5 * time.Second,
	}
}

func newTestManager(t *testing.T, mode string, source Source) (*Manager, *repository.StockRepository, *time.Time) {
	t.Helper()
	repo := repository.NewStockRepository(testutil.NewDB(t))
	m := NewManager(repo, source, settings(mode), logger.NewNop())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, repo, &clock
}

func TestCacheTTLMonotonic(t *testing.T) {
	m := NewManager(nil, nil, settings(config.StockModePull), logger.NewNop())

	limit := int(time.Hour / (10 * time.Second))
	previous := m.CacheTTL(0)
	for q := 1; q <= limit; q++ {
		ttl := m.CacheTTL(q)
		assert.GreaterOrEqual(t, ttl, previous, "quantity %d", q)
		previous = ttl
	}
}

func TestCacheTTLBounds(t *testing.T) {
	m := NewManager(nil, nil, settings(config.StockModePull), logger.NewNop())

	assert.Equal(t, 5*time.Second, m.CacheTTL(0))
	assert.Equal(t, 10*time.Second, m.CacheTTL(1))
	assert.Equal(t, 100*time.Second, m.CacheTTL(10))
	assert.Equal(t, time.Hour, m.CacheTTL(360))
	for _, q := range []int{361, 1000, 10000, 1 << 40} {
		assert.Equal(t, time.Hour, m.CacheTTL(q), "quantity %d", q)
	}
	assert.Equal(t, 5*time.Second, m.CacheTTL(-3))
}

func TestProcessStockMessagePush(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t, config.StockModePush, nil)

	require.NoError(t, m.ProcessStockMessage(ctx, commerce.StockMessage{SKU: "24-MB01", Quantity: 7.9, IsInStock: true}, "1"))

	entry, err := repo.Get(ctx, "24-MB01")
	require.NoError(t, err)
	assert.Equal(t, 7, entry.Quantity)
	assert.True(t, entry.InStock)
	assert.Equal(t, "1", entry.StoreID)
	assert.Nil(t, entry.ExpiresAt)

	qty, err := m.GetStockQuantity(ctx, "24-MB01")
	require.NoError(t, err)
	assert.Equal(t, 7, qty)
}

func TestProcessStockMessageCapsHugeQuantity(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newTestManager(t, config.StockModePull, nil)

	require.NoError(t, m.ProcessStockMessage(ctx, commerce.StockMessage{SKU: "24-MB01", Quantity: 1e30, IsInStock: true}, "1"))

	entry, err := repo.Get(ctx, "24-MB01")
	require.NoError(t, err)
	assert.Equal(t, commerce.MaxQty, entry.Quantity)
	assert.True(t, entry.InStock)
	require.NotNil(t, entry.ExpiresAt)
}

func TestProcessStockMessageInStockNeedsQuantityAndFlag(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, config.StockModePush, nil)

	cases := []struct {
		sku  string
		qty  float64
		flag bool
		want bool
	}{
		{"A", 5, true, true},
		{"B", 5, false, false},
		{"C", 0, true, false},
		{"D", -2, true, false},
	}
	for _, c := range cases {
		require.NoError(t, m.ProcessStockMessage(ctx, commerce.StockMessage{SKU: c.sku, Quantity: c.qty, IsInStock: c.flag}, ""))
		inStock, err := m.IsProductInStock(ctx, c.sku)
		require.NoError(t, err)
		assert.Equal(t, c.want, inStock, c.sku)
	}
}

func TestProcessStockMessageRequiresSKU(t *testing.T) {
	m, _, _ := newTestManager(t, config.StockModePush, nil)

	err := m.ProcessStockMessage(context.Background(), commerce.StockMessage{SKU: "  ", Quantity: 3}, "1")
	assert.ErrorIs(t, err, ErrMissingSKU)
}

func TestPushMissIsZero(t *testing.T) {
	m, _, _ := newTestManager(t, config.StockModePush, nil)

	qty, err := m.GetStockQuantity(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Zero(t, qty)
}

func TestPullFetchesAndCaches(t *testing.T) {
	ctx := context.Background()
	source := &stubSource{stock: map[string]commerce.StockMessage{
		"24-MB01": {SKU: "24-MB01", Quantity: 3, IsInStock: true},
	}}
	m, repo, clock := newTestManager(t, config.StockModePull, source)

	qty, err := m.GetStockQuantity(ctx, "24-MB01")
	require.NoError(t, err)
	assert.Equal(t, 3, qty)
	assert.Equal(t, 1, source.calls)

	entry, err := repo.Get(ctx, "24-MB01")
	require.NoError(t, err)
	require.NotNil(t, entry.ExpiresAt)
	assert.True(t, entry.ExpiresAt.Equal(clock.Add(30*time.Second)))

	// served from cache while fresh
	_, err = m.GetStockQuantity(ctx, "24-MB01")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	// refetched once expired
	*clock = clock.Add(31 * time.Second)
	source.stock["24-MB01"] = commerce.StockMessage{SKU: "24-MB01", Quantity: 0, IsInStock: false}
	inStock, err := m.IsProductInStock(ctx, "24-MB01")
	require.NoError(t, err)
	assert.False(t, inStock)
	assert.Equal(t, 2, source.calls)
}

func TestPullUnknownUpstreamIsOutOfStock(t *testing.T) {
	source := &stubSource{stock: map[string]commerce.StockMessage{}}
	m, _, _ := newTestManager(t, config.StockModePull, source)

	inStock, err := m.IsProductInStock(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, inStock)
}

func TestPullSourceFailurePropagates(t *testing.T) {
	source := &stubSource{err: errors.New("timeout")}
	m, _, _ := newTestManager(t, config.StockModePull, source)

	_, err := m.GetStockQuantity(context.Background(), "24-MB01")
	assert.Error(t, err)
}
