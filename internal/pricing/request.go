package pricing

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// wireItem accepts both unit_price and price so that storefront cart
// entries can be posted as-is.
type wireItem struct {
	ProductID string           `json:"product_id"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Price     *decimal.Decimal `json:"price"`
	Quantity  *int             `json:"quantity"`
}

// WireRequest is the calculator endpoint body. Items may be a JSON array or
// a string holding a JSON-encoded array.
type WireRequest struct {
	Items         json.RawMessage `json:"items"`
	PromotionCode string          `json:"promotion_code"`
}

// Decode converts the wire body into a calculator request.
func (w WireRequest) Decode() (Request, error) {
	items, err := ParseItems(w.Items)
	if err != nil {
		return Request{}, err
	}
	return Request{Items: items, PromotionCode: w.PromotionCode}, nil
}

// ParseItems decodes raw into line items. Missing prices or quantities and
// anything other than a list are rejected.
func ParseItems(raw json.RawMessage) ([]models.LineItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.NewValidationError("items", "items are required")
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, errors.NewValidationError("items", "items must be a list")
		}
		raw = bytes.TrimSpace([]byte(encoded))
	}

	if len(raw) == 0 || raw[0] != '[' {
		return nil, errors.NewValidationError("items", "items must be a list")
	}

	var wire []wireItem
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errors.NewValidationError("items", "items must be a list of line items")
	}

	items := make([]models.LineItem, 0, len(wire))
	for _, w := range wire {
		price := w.UnitPrice
		if price == nil {
			price = w.Price
		}
		if price == nil {
			return nil, errors.NewValidationError("items", "every item needs a price")
		}
		if w.Quantity == nil {
			return nil, errors.NewValidationError("items", "every item needs a quantity")
		}
		items = append(items, models.LineItem{
			ProductID: w.ProductID,
			UnitPrice: *price,
			Quantity:  *w.Quantity,
		})
	}

	if err := ValidateItems(items); err != nil {
		return nil, err
	}
	return items, nil
}
