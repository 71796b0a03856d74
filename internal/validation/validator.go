// Package validation performs structural checks on raw feed items before
// they reach the reconcilers.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"catalogsync/internal/commerce"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
)

const maxSKULength = 64

var (
	ErrMissingSKU = errors.New("sku is required")
	ErrInvalid    = errors.New("invalid field")
)

type Validator struct {
	logger *logger.Logger
}

func New(logger *logger.Logger) *Validator {
	return &Validator{
		logger: logger,
	}
}

// ValidateProduct checks the fields an item supplies. Absent fields are
// never an error.
func (v *Validator) ValidateProduct(p commerce.Product) error {
	sku := strings.TrimSpace(p.SKU)
	if sku == "" {
		return ErrMissingSKU
	}
	if len(sku) > maxSKULength {
		return fmt.Errorf("%w: sku longer than %d characters", ErrInvalid, maxSKULength)
	}
	if p.Price != nil && p.Price.IsNegative() {
		return fmt.Errorf("%w: negative price %s", ErrInvalid, p.Price)
	}
	if p.FinalPrice != nil && p.FinalPrice.IsNegative() {
		return fmt.Errorf("%w: negative final price %s", ErrInvalid, p.FinalPrice)
	}
	if p.Status != nil {
		switch models.ProductStatus(*p.Status) {
		case models.ProductStatusEnabled, models.ProductStatusDisabled:
		default:
			return fmt.Errorf("%w: unknown status %d", ErrInvalid, *p.Status)
		}
	}
	if p.Type != nil && strings.TrimSpace(*p.Type) == "" {
		return fmt.Errorf("%w: empty type", ErrInvalid)
	}
	if len(p.ConfiguredChildSkus) > 0 && (p.Type == nil || models.ProductType(*p.Type) != models.ProductTypeConfigurable) {
		v.logger.Debug("Product %s lists child SKUs without being configurable; they will be ignored", sku)
	}
	return nil
}

func (v *Validator) ValidateStock(m commerce.StockMessage) error {
	if strings.TrimSpace(m.SKU) == "" {
		return ErrMissingSKU
	}
	if math.IsNaN(m.Quantity) || math.IsInf(m.Quantity, 0) {
		return fmt.Errorf("%w: quantity %v", ErrInvalid, m.Quantity)
	}
	return nil
}
