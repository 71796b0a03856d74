package product

import (
	"context"
	"errors"
	"fmt"

	"catalogsync/internal/models"
	"catalogsync/internal/repository"
)

// ResolveDisplay returns the display a SKU is rendered through. A child of
// a configurable product resolves to its parent's display when the parent
// has one; otherwise the SKU's own display is used.
func (r *Reconciler) ResolveDisplay(ctx context.Context, cache *RunCache, sku, langcode string) (*models.DisplayRecord, error) {
	record, err := r.products.FindBySKU(ctx, sku, langcode)
	if err != nil {
		return nil, err
	}

	parentSKU, ok, err := CapabilitiesFor(record.Type).ResolveParent(ctx, r.products, cache, record)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parent of %s: %w", sku, err)
	}
	if ok {
		display, err := r.displays.FindBySKU(ctx, r.settings.DisplayType, parentSKU)
		if err == nil {
			return display, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		r.logger.Debug("Parent %s of %s has no display, using the child's", parentSKU, sku)
	}

	return r.displays.FindBySKU(ctx, r.settings.DisplayType, sku)
}

// CartItem is what the cart shows and sends upstream for one line.
type CartItem struct {
	DisplayName string            `json:"display_name"`
	Payload     *AddToCartPayload `json:"payload"`
}

// BuildCartItem prepares the add-to-cart request for sku. selectedSKU picks
// the variant of a configurable product.
func (r *Reconciler) BuildCartItem(ctx context.Context, cache *RunCache, sku, langcode string, qty int, selectedSKU string) (*CartItem, error) {
	record, err := r.products.FindBySKU(ctx, sku, langcode)
	if err != nil {
		return nil, err
	}
	if !record.Enabled() {
		return nil, fmt.Errorf("product %s is disabled", sku)
	}

	caps := CapabilitiesFor(record.Type)
	var parent *models.ProductRecord
	parentSKU, ok, err := caps.ResolveParent(ctx, r.products, cache, record)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parent of %s: %w", sku, err)
	}
	if ok {
		parent, err = r.products.FindBySKU(ctx, parentSKU, langcode)
		if err != nil {
			return nil, err
		}
	}

	payload, err := caps.BuildAddToCartPayload(record, parent, qty, selectedSKU)
	if err != nil {
		return nil, err
	}
	return &CartItem{
		DisplayName: caps.CartDisplayName(record, parent),
		Payload:     payload,
	}, nil
}
