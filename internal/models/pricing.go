package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Currency amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// LineItem is one product selection as priced by the order-total calculator.
type LineItem struct {
	ProductID string          `json:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal returns unit price × quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// OrderTotals is the derived pricing breakdown. It is never persisted on
// its own.
type OrderTotals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// PromotionCode is a redeemable discount as stored in promotion_codes.
type PromotionCode struct {
	Code               string          `json:"code"`
	DiscountType       DiscountType    `json:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discount_value"`
	StartsAt           *time.Time      `json:"starts_at,omitempty"`
	EndsAt             *time.Time      `json:"ends_at,omitempty"`
	MinimumOrderAmount decimal.Decimal `json:"minimum_order_amount"`
	UsageLimit         *int            `json:"usage_limit,omitempty"`
	UsageCount         int             `json:"usage_count"`
	Active             bool            `json:"active"`
}

// Product is the catalog view used to price cart lines.
type Product struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	ImageURL  string           `json:"image_url,omitempty"`
	Stock     int              `json:"stock"`
}

// EffectivePrice is the sale price when present, else the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.Price
}
