package product

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"catalogsync/internal/models"
	"catalogsync/internal/repository"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrMissingVariant  = errors.New("a configured child sku must be selected")
)

// ParentLookup is what parent resolution needs from the product store.
type ParentLookup interface {
	FindBySKU(ctx context.Context, sku, langcode string) (*models.ProductRecord, error)
	FindParentSKUs(ctx context.Context, childSKU, langcode string) ([]string, error)
}

// AddToCartPayload is the request body the commerce backend expects when a
// product is added to a cart.
type AddToCartPayload struct {
	SKU           string            `json:"sku"`
	Qty           int               `json:"qty"`
	ProductType   string            `json:"product_type"`
	ParentSKU     string            `json:"parent_sku,omitempty"`
	ProductOption map[string]string `json:"product_option,omitempty"`
}

// Capabilities is the behavior that differs between product types.
type Capabilities interface {
	// ResolveParent returns the SKU of the configurable product p is sold
	// through, if any.
	ResolveParent(ctx context.Context, lookup ParentLookup, cache *RunCache, p *models.ProductRecord) (string, bool, error)
	CartDisplayName(p, parent *models.ProductRecord) string
	BuildAddToCartPayload(p, parent *models.ProductRecord, qty int, selectedSKU string) (*AddToCartPayload, error)
}

// CapabilitiesFor returns the behavior of t. Types without dedicated
// behavior are treated as simple products.
func CapabilitiesFor(t models.ProductType) Capabilities {
	switch t {
	case models.ProductTypeConfigurable:
		return configurable{}
	default:
		return simple{}
	}
}

type simple struct{}

func (simple) ResolveParent(ctx context.Context, lookup ParentLookup, cache *RunCache, p *models.ProductRecord) (string, bool, error) {
	if parent, ok := cache.Parent(p.SKU, p.Langcode); ok {
		return parent, parent != "", nil
	}

	candidates, err := lookup.FindParentSKUs(ctx, p.SKU, p.Langcode)
	if err != nil {
		return "", false, err
	}
	resolved := ""
	for _, sku := range candidates {
		parent, err := lookup.FindBySKU(ctx, sku, p.Langcode)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		if parent.Type == models.ProductTypeConfigurable && parent.Enabled() {
			resolved = parent.SKU
			break
		}
	}
	cache.SetParent(p.SKU, p.Langcode, resolved)
	return resolved, resolved != "", nil
}

func (simple) CartDisplayName(p, parent *models.ProductRecord) string {
	name := p.Name
	if name == "" {
		name = p.SKU
	}
	if parent != nil && parent.Name != "" && parent.Name != name {
		return fmt.Sprintf("%s - %s", parent.Name, name)
	}
	return name
}

func (simple) BuildAddToCartPayload(p, parent *models.ProductRecord, qty int, selectedSKU string) (*AddToCartPayload, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	payload := &AddToCartPayload{
		SKU:         p.SKU,
		Qty:         qty,
		ProductType: string(models.ProductTypeSimple),
	}
	if parent != nil {
		// a child of a configurable is added through its parent
		payload.SKU = parent.SKU
		payload.ParentSKU = parent.SKU
		payload.ProductType = string(models.ProductTypeConfigurable)
		payload.ProductOption = map[string]string{"selected_sku": p.SKU}
	}
	return payload, nil
}

type configurable struct{}

func (configurable) ResolveParent(ctx context.Context, lookup ParentLookup, cache *RunCache, p *models.ProductRecord) (string, bool, error) {
	return "", false, nil
}

func (configurable) CartDisplayName(p, parent *models.ProductRecord) string {
	if p.Name == "" {
		return p.SKU
	}
	return p.Name
}

func (configurable) BuildAddToCartPayload(p, parent *models.ProductRecord, qty int, selectedSKU string) (*AddToCartPayload, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	if selectedSKU == "" || !slices.Contains([]string(p.ConfiguredChildSkus), selectedSKU) {
		return nil, fmt.Errorf("%w: %q is not a child of %s", ErrMissingVariant, selectedSKU, p.SKU)
	}
	return &AddToCartPayload{
		SKU:           p.SKU,
		Qty:           qty,
		ProductType:   string(models.ProductTypeConfigurable),
		ProductOption: map[string]string{"selected_sku": selectedSKU},
	}, nil
}
