package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartEntry is a display-ready cart line: the product as it was joined from
// the catalog plus the selected quantity.
type CartEntry struct {
	ProductID string           `json:"product_id"`
	Name      string           `json:"name"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	ImageURL  string           `json:"image_url,omitempty"`
	Quantity  int              `json:"quantity"`
	AddedAt   time.Time        `json:"added_at"`
}

// UnitPrice is the sale price when present, else the list price.
func (e CartEntry) UnitPrice() decimal.Decimal {
	if e.SalePrice != nil {
		return *e.SalePrice
	}
	return e.Price
}

// EntryFromProduct builds a cart line for product.
func EntryFromProduct(p Product, quantity int, now time.Time) CartEntry {
	return CartEntry{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		SalePrice: p.SalePrice,
		ImageURL:  p.ImageURL,
		Quantity:  quantity,
		AddedAt:   now,
	}
}

// CartSnapshot is the complete set of lines for one shopper. Product ids are
// unique and every quantity is at least 1.
type CartSnapshot struct {
	Owner     string      `json:"owner"`
	Items     []CartEntry `json:"items"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Find returns the index of productID or -1.
func (s CartSnapshot) Find(productID string) int {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// IsEmpty reports whether the snapshot has no lines.
func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// ItemCount is the sum of quantities.
func (s CartSnapshot) ItemCount() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

// Subtotal is Σ unit price × quantity.
func (s CartSnapshot) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.UnitPrice().Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// LineItems converts the snapshot into priced line items.
func (s CartSnapshot) LineItems() []LineItem {
	items := make([]LineItem, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, LineItem{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice(),
			Quantity:  it.Quantity,
		})
	}
	return items
}

// Clone returns a deep copy so callers cannot mutate store state.
func (s CartSnapshot) Clone() CartSnapshot {
	out := s
	out.Items = make([]CartEntry, len(s.Items))
	copy(out.Items, s.Items)
	return out
}

// CartView is the JSON shape returned by the cart endpoints.
type CartView struct {
	Items     []CartEntry     `json:"items"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Source    string          `json:"source"`
	Degraded  bool            `json:"degraded,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
