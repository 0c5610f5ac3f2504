// Package pricing computes order totals: subtotal, promotion discount,
// shipping and total. Calculations are pure and use exact decimal
// arithmetic; the only I/O is the promotion lookup behind PromotionPolicy.
package pricing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// Rules holds the shipping configuration.
type Rules struct {
	// Orders whose subtotal is strictly above this ship free.
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
}

// DefaultRules returns the storefront's standard shipping rules.
func DefaultRules() Rules {
	return Rules{
		FreeShippingThreshold: decimal.NewFromInt(5000),
		ShippingFee:           decimal.NewFromInt(100),
	}
}

// Request is the calculator input.
type Request struct {
	Items         []models.LineItem `json:"items"`
	PromotionCode string            `json:"promotion_code,omitempty"`
}

// Calculator computes OrderTotals. It holds no per-request state, so
// identical requests yield identical results and are safe to retry.
type Calculator struct {
	rules      Rules
	promotions PromotionPolicy
	logger     *logging.LoggerV2
}

// NewCalculator creates a calculator. A nil policy rejects every code.
func NewCalculator(rules Rules, promotions PromotionPolicy) *Calculator {
	if promotions == nil {
		promotions = noPromotions{}
	}
	return &Calculator{
		rules:      rules,
		promotions: promotions,
		logger:     logging.NewLoggerV2("pricing"),
	}
}

// Rules returns the shipping rules in effect.
func (c *Calculator) Rules() Rules {
	return c.rules
}

// Calculate validates the items and returns the totals.
func (c *Calculator) Calculate(ctx context.Context, req Request) (*models.OrderTotals, error) {
	if err := ValidateItems(req.Items); err != nil {
		return nil, err
	}

	subtotal := Subtotal(req.Items)

	discount := decimal.Zero
	code := NormalizeCode(req.PromotionCode)
	if code != "" {
		d, err := c.promotions.Discount(ctx, code, subtotal)
		if err != nil {
			c.logger.Debug("Promotion rejected", logging.Fields{
				"code":  code,
				"error": err.Error(),
			})
			return nil, err
		}
		discount = d
	}

	totals := Compose(subtotal, discount, ShippingFor(subtotal, c.rules))
	return &totals, nil
}

// ValidateItems rejects empty lists, non-positive quantities and negative
// prices.
func ValidateItems(items []models.LineItem) error {
	if len(items) == 0 {
		return errors.NewValidationError("items", "at least one item is required")
	}

	for _, item := range items {
		if item.Quantity < 1 {
			return errors.NewValidationError("items", "quantity must be at least 1")
		}
		if item.UnitPrice.IsNegative() {
			return errors.NewValidationError("items", "unit price cannot be negative")
		}
	}
	return nil
}

// Subtotal is Σ(unit_price × quantity). Order of items does not matter.
func Subtotal(items []models.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ShippingFor is free above the threshold and the flat fee otherwise.
func ShippingFor(subtotal decimal.Decimal, rules Rules) decimal.Decimal {
	if subtotal.GreaterThan(rules.FreeShippingThreshold) {
		return decimal.Zero
	}
	return rules.ShippingFee
}

// Compose assembles totals. The total is floored at zero.
func Compose(subtotal, discount, shipping decimal.Decimal) models.OrderTotals {
	total := subtotal.Sub(discount).Add(shipping)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return models.OrderTotals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    total,
	}
}

// NormalizeCode trims and upper-cases a promotion code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SubtotalOnly is the calculator-free estimate used when the calculator is
// unreachable. Discount and shipping are unknown and reported as zero.
func SubtotalOnly(items []models.LineItem) models.OrderTotals {
	return Compose(Subtotal(items), decimal.Zero, decimal.Zero)
}
