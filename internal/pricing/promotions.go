package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

const (
	PromotionModeLookup = "lookup"
	PromotionModeFlat   = "flat"
)

// PromotionPolicy turns a normalized promotion code into a discount for the
// given subtotal.
type PromotionPolicy interface {
	Discount(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// PromotionStore resolves promotion codes. Implementations return
// errors.ErrNotFound for unknown codes.
type PromotionStore interface {
	GetByCode(ctx context.Context, code string) (*models.PromotionCode, error)
}

// LookupPolicy validates codes against their stored configuration.
type LookupPolicy struct {
	store PromotionStore
	now   func() time.Time
}

func NewLookupPolicy(store PromotionStore) *LookupPolicy {
	return &LookupPolicy{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (p *LookupPolicy) WithClock(now func() time.Time) *LookupPolicy {
	p.now = now
	return p
}

func (p *LookupPolicy) Discount(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	promo, err := p.store.GetByCode(ctx, code)
	if errors.Is(err, errors.ErrNotFound) {
		return decimal.Zero, errors.NewValidationError("promotion_code", "promotion code is not valid")
	}
	if err != nil {
		return decimal.Zero, errors.Unavailable("lookup promotion code", err)
	}
	return EvaluatePromotion(promo, subtotal, p.now())
}

// EvaluatePromotion checks validity rules and computes the discount. The
// discount never exceeds the subtotal and is rounded to two decimal places.
func EvaluatePromotion(promo *models.PromotionCode, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if promo == nil || !promo.Active {
		return decimal.Zero, errors.NewValidationError("promotion_code", "promotion code is not valid")
	}
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return decimal.Zero, errors.NewValidationError("promotion_code", "promotion code is not active yet")
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return decimal.Zero, errors.NewValidationError("promotion_code", "promotion code has expired")
	}
	if promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit {
		return decimal.Zero, errors.NewValidationError("promotion_code", "promotion code usage limit reached")
	}
	if subtotal.LessThan(promo.MinimumOrderAmount) {
		return decimal.Zero, errors.NewValidationError("promotion_code",
			fmt.Sprintf("minimum order amount of %s required", promo.MinimumOrderAmount.StringFixed(2)))
	}

	var discount decimal.Decimal
	switch promo.DiscountType {
	case models.DiscountTypePercentage:
		discount = subtotal.Mul(promo.DiscountValue).Div(decimal.NewFromInt(100))
	case models.DiscountTypeFixed:
		discount = promo.DiscountValue
	default:
		return decimal.Zero, errors.NewValidationError("promotion_code", "promotion code is misconfigured")
	}

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount.Round(2), nil
}

// FlatRatePolicy grants Rate × subtotal for any non-empty code without
// looking it up. It reproduces the storefront's original placeholder and is
// only enabled with PRICING_PROMOTION_MODE=flat.
type FlatRatePolicy struct {
	Rate decimal.Decimal
}

func (p FlatRatePolicy) Discount(_ context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if code == "" {
		return decimal.Zero, nil
	}
	return subtotal.Mul(p.Rate).Round(2), nil
}

type noPromotions struct{}

func (noPromotions) Discount(context.Context, string, decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Zero, errors.NewValidationError("promotion_code", "promotion codes are not accepted")
}

// NewPolicy builds the policy for mode.
func NewPolicy(mode string, store PromotionStore, flatRate decimal.Decimal) (PromotionPolicy, error) {
	switch mode {
	case PromotionModeLookup, "":
		if store == nil {
			return nil, fmt.Errorf("promotion mode %q requires a promotion store", mode)
		}
		return NewLookupPolicy(store), nil
	case PromotionModeFlat:
		return FlatRatePolicy{Rate: flatRate}, nil
	default:
		return nil, fmt.Errorf("unknown promotion mode %q", mode)
	}
}
