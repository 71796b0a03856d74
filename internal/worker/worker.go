package worker

import (
	"context"
	"errors"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/queue"
	"catalogsync/internal/worker/processors"

	"golang.org/x/sync/errgroup"
)

// Worker consumes the attach and detach queues.
type Worker struct {
	queues       queue.Pair
	processor    *processors.BatchProcessor
	pollInterval time.Duration
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

func New(queues queue.Pair, processor *processors.BatchProcessor, pollInterval time.Duration, metrics *metrics.Metrics, logger *logger.Logger) *Worker {
	return &Worker{
		queues:       queues,
		processor:    processor,
		pollInterval: pollInterval,
		metrics:      metrics,
		logger:       logger,
	}
}

// Start runs one consumer loop per queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Worker started, consuming %s and %s", w.queues.Attach.Name(), w.queues.Detach.Name())

	g, ctx := errgroup.WithContext(ctx)
	for _, q := range w.queues.All() {
		q := q
		g.Go(func() error {
			return w.consume(ctx, q)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) consume(ctx context.Context, q queue.Queue) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d, err := q.Receive(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			if !sleep(ctx, w.pollInterval) {
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("Failed to receive from %s: %v", q.Name(), err)
			if !sleep(ctx, w.pollInterval) {
				return ctx.Err()
			}
			continue
		}

		// back off after a failed item
		if !w.handle(ctx, q, d) && !sleep(ctx, w.pollInterval) {
			return ctx.Err()
		}
	}
}

// ProcessAvailable consumes both queues until they are empty and returns
// the number of items handled. A queue is left alone after its first
// failed item, which stays queued for a later run.
func (w *Worker) ProcessAvailable(ctx context.Context) (int, error) {
	handled := 0
	for _, q := range w.queues.All() {
		for {
			d, err := q.Receive(ctx)
			if errors.Is(err, queue.ErrEmpty) {
				break
			}
			if err != nil {
				return handled, err
			}
			handled++
			if !w.handle(ctx, q, d) {
				break
			}
		}
	}
	return handled, nil
}

// handle applies one delivery and reports whether it succeeded.
func (w *Worker) handle(ctx context.Context, q queue.Queue, d *queue.Delivery) bool {
	stats, err := w.processor.Process(ctx, d.Item)
	if err != nil {
		w.logger.Error("Failed to process %s batch for promotion %s: %v", d.Item.Operation, d.Item.PromotionID, err)
		if err := d.Nack(ctx); err != nil {
			w.logger.Error("Failed to release item on %s: %v", q.Name(), err)
		}
		w.metrics.QueueItem(q.Name(), "nacked")
		return false
	}

	if err := d.Ack(ctx); err != nil {
		w.logger.Error("Failed to acknowledge item on %s: %v", q.Name(), err)
		return false
	}
	w.metrics.QueueItem(q.Name(), "acked")
	w.logger.Debug("Processed %s batch for promotion %s: %d applied, %d unresolved",
		d.Item.Operation, d.Item.PromotionID, stats.Applied, stats.Unresolved)
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
