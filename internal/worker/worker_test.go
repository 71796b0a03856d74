package worker

import (
	"context"
	"testing"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/models"
	"catalogsync/internal/queue"
	"catalogsync/internal/repository"
	"catalogsync/internal/testutil"
	"catalogsync/internal/worker/processors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *Worker, queue.Pair, *models.PromotionRecord) {
	t.Helper()
	return setupWithPoll(t, 10*time.Millisecond)
}

func setupWithPoll(t *testing.T, pollInterval time.Duration) (*gorm.DB, *Worker, queue.Pair, *models.PromotionRecord) {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewDB(t)
	products := repository.NewProductRepository(db)
	promotions := repository.NewPromotionRepository(db)

	for _, sku := range []string{"A", "B"} {
		require.NoError(t, products.Create(ctx, &models.ProductRecord{SKU: sku, Langcode: "en"}))
	}
	promotion := &models.PromotionRecord{RuleID: 1, Type: models.PromotionTypeCart}
	require.NoError(t, promotions.Create(ctx, promotion))

	log := logger.NewNop()
	pair := queue.Pair{
		Attach: queue.NewDatabaseQueue(db, "promotion_attach", time.Minute, 3, log),
		Detach: queue.NewDatabaseQueue(db, "promotion_detach", time.Minute, 3, log),
	}
	w := New(pair, processors.NewBatchProcessor(promotions, products, log), pollInterval, metrics.New(prometheus.NewRegistry()), log)
	return db, w, pair, promotion
}

func countMemberships(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.ProductPromotion{}).Count(&n).Error)
	return n
}

func TestProcessAvailable(t *testing.T) {
	ctx := context.Background()
	db, w, pair, promotion := setup(t)

	require.NoError(t, pair.Attach.Enqueue(ctx, queue.WorkItem{PromotionID: promotion.ID, Operation: queue.OperationAttach, SKUs: []string{"A", "B"}}))
	require.NoError(t, pair.Detach.Enqueue(ctx, queue.WorkItem{PromotionID: promotion.ID, Operation: queue.OperationDetach, SKUs: []string{"B"}}))

	handled, err := w.ProcessAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, int64(1), countMemberships(t, db))

	handled, err = w.ProcessAvailable(ctx)
	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestProcessAvailableLeavesFailedItemQueued(t *testing.T) {
	ctx := context.Background()
	_, w, pair, promotion := setup(t)

	require.NoError(t, pair.Attach.Enqueue(ctx,
		queue.WorkItem{PromotionID: promotion.ID, Operation: "bogus"},
		queue.WorkItem{PromotionID: promotion.ID, Operation: queue.OperationAttach, SKUs: []string{"A"}},
	))

	handled, err := w.ProcessAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	pending, err := pair.Attach.(*queue.DatabaseQueue).Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestStartConsumesUntilCancelled(t *testing.T) {
	db, w, pair, promotion := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.NoError(t, pair.Attach.Enqueue(ctx, queue.WorkItem{PromotionID: promotion.ID, Operation: queue.OperationAttach, SKUs: []string{"A", "B"}}))

	require.Eventually(t, func() bool {
		var n int64
		db.Model(&models.ProductPromotion{}).Count(&n)
		return n == 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestStartBacksOffAfterFailedItem(t *testing.T) {
	db, w, pair, promotion := setupWithPoll(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pair.Attach.Enqueue(ctx, queue.WorkItem{PromotionID: promotion.ID, Operation: "bogus"}))

	attempts := func() int {
		var item models.QueueItem
		if err := db.Where("queue = ?", "promotion_attach").First(&item).Error; err != nil {
			return -1
		}
		return item.Attempts
	}

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return attempts() == 1 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, attempts())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
