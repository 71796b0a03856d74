// Package metrics exposes the pipeline's prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"catalogsync/internal/catalog"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	items      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueItems *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalogsync",
			Name:      "items_total",
			Help:      "Items handled by the reconcilers, by outcome.",
		}, []string{"component", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catalogsync",
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"component"}),
		queueItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalogsync",
			Name:      "queue_items_total",
			Help:      "Work items consumed from the queues, by outcome.",
		}, []string{"queue", "outcome"}),
	}
	reg.MustRegister(m.items, m.duration, m.queueItems)
	return m
}

func (m *Metrics) ObserveDuration(component string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(component).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddItems(component, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.items.WithLabelValues(component, outcome).Add(float64(n))
}

func (m *Metrics) RecordProducts(r *catalog.ProductResult) {
	if r == nil {
		return
	}
	m.AddItems("product", "created", r.Created)
	m.AddItems("product", "updated", r.Updated)
	m.AddItems("product", "unchanged", r.Unchanged)
	m.AddItems("product", "skipped", r.Skipped)
	m.AddItems("product", "deleted", r.Deleted)
	m.AddItems("product", "error", len(r.Errors))
}

func (m *Metrics) RecordTree(r *catalog.TreeResult) {
	if r == nil {
		return
	}
	m.AddItems("category", "created", len(r.Created))
	m.AddItems("category", "updated", len(r.Updated))
	m.AddItems("category", "reparented", len(r.Reparented))
	m.AddItems("category", "deleted", len(r.Deleted))
	m.AddItems("category", "error", len(r.Errors))
}

func (m *Metrics) RecordCategories(r *catalog.CategoryResult) {
	if r == nil {
		return
	}
	m.AddItems("category", "created", r.Created)
	m.AddItems("category", "updated", r.Updated)
	m.AddItems("category", "error", len(r.Errors))
}

func (m *Metrics) RecordPromotions(r *catalog.PromotionResult) {
	if r == nil {
		return
	}
	m.AddItems("promotion", "created", r.Created)
	m.AddItems("promotion", "updated", r.Updated)
	m.AddItems("promotion", "skipped", r.Skipped)
	m.AddItems("promotion", "deleted", r.Deleted)
	m.AddItems("promotion", "error", len(r.Errors))
}

func (m *Metrics) QueueItem(queue, outcome string) {
	if m == nil {
		return
	}
	m.queueItems.WithLabelValues(queue, outcome).Inc()
}
