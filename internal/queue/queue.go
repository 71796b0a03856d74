// Package queue provides the named, durable, at-least-once work queues that
// carry promotion attach and detach batches from the reconciler to the
// workers.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrEmpty is returned by Receive when no item is currently available.
var ErrEmpty = errors.New("queue is empty")

type Operation string

const (
	OperationAttach Operation = "attach"
	OperationDetach Operation = "detach"
)

// ItemData is the per-SKU extra data of an attach batch.
type ItemData struct {
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
}

// WorkItem is one attach or detach batch for a single promotion.
type WorkItem struct {
	PromotionID string              `json:"promotion_id"`
	Operation   Operation           `json:"operation"`
	SKUs        []string            `json:"skus"`
	ExtraData   map[string]ItemData `json:"extra_data,omitempty"`
	Generation  int64               `json:"generation,omitempty"`
	Attempts    int                 `json:"attempts,omitempty"`
}

func (w WorkItem) Validate() error {
	if w.PromotionID == "" {
		return errors.New("work item has no promotion id")
	}
	switch w.Operation {
	case OperationAttach, OperationDetach:
	default:
		return fmt.Errorf("unknown operation %q", w.Operation)
	}
	return nil
}

// Queue is a named work queue.
type Queue interface {
	Name() string
	Enqueue(ctx context.Context, items ...WorkItem) error
	// Drain discards every pending item and returns how many were removed,
	// or -1 when the backend cannot count them.
	Drain(ctx context.Context) (int64, error)
	// Receive returns the next item, or ErrEmpty when nothing is pending.
	Receive(ctx context.Context) (*Delivery, error)
	Close() error
}

// Delivery is a received item that must be acknowledged once applied or
// released with Nack for redelivery.
type Delivery struct {
	Item WorkItem

	ack  func(ctx context.Context) error
	nack func(ctx context.Context) error
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx)
}
