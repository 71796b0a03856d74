// Package catalog holds the result and error types shared by the
// reconcilers.
package catalog

import (
	"errors"
	"fmt"
)

// ErrEmptyPayload is recorded when a sync call receives no items at all.
var ErrEmptyPayload = errors.New("empty payload")

// ItemError describes one record that could not be reconciled. Key is the
// natural key of the record (sku, rule id, commerce id).
type ItemError struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e ItemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// ProductResult aggregates one SynchronizeProducts call.
type ProductResult struct {
	Success   bool        `json:"success"`
	Created   int         `json:"created"`
	Updated   int         `json:"updated"`
	Unchanged int         `json:"unchanged"`
	Skipped   int         `json:"skipped"`
	Deleted   int         `json:"deleted"`
	Errors    []ItemError `json:"errors"`
}

func (r *ProductResult) AddError(key, reason string, err error) {
	r.Errors = append(r.Errors, ItemError{Key: key, Reason: reason, Err: err})
}

// Merge folds another chunk's result into r.
func (r *ProductResult) Merge(other *ProductResult) {
	if other == nil {
		return
	}
	r.Success = r.Success || other.Success
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Skipped += other.Skipped
	r.Deleted += other.Deleted
	r.Errors = append(r.Errors, other.Errors...)
}

// TreeResult aggregates a full category tree sync.
type TreeResult struct {
	Created    []int64     `json:"created"`
	Updated    []int64     `json:"updated"`
	Reparented []int64     `json:"reparented"`
	Deleted    []int64     `json:"deleted"`
	Warnings   []string    `json:"warnings"`
	Errors     []ItemError `json:"errors"`
}

// CategoryResult aggregates an incremental category sync.
type CategoryResult struct {
	Created  int         `json:"created"`
	Updated  int         `json:"updated"`
	Warnings []string    `json:"warnings"`
	Errors   []ItemError `json:"errors"`
}

// PromotionResult aggregates a promotion sync run.
type PromotionResult struct {
	Fetched       int         `json:"fetched"`
	Created       int         `json:"created"`
	Updated       int         `json:"updated"`
	Skipped       int         `json:"skipped"`
	Deleted       int         `json:"deleted"`
	AttachBatches int         `json:"attach_batches"`
	DetachBatches int         `json:"detach_batches"`
	DrainedItems  int64       `json:"drained_items"`
	Errors        []ItemError `json:"errors"`
}

func (r *PromotionResult) AddError(key, reason string, err error) {
	r.Errors = append(r.Errors, ItemError{Key: key, Reason: reason, Err: err})
}

// Chunk splits items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
