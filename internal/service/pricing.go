package service

import (
	"fmt"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// repriceItems replaces caller-supplied prices with catalog prices. Repeated
// products are folded into one line in first-seen order.
func repriceItems(items []models.LineItem, catalog map[string]*models.Product) ([]models.OrderItem, []models.LineItem, error) {
	index := make(map[string]int, len(items))
	orderItems := make([]models.OrderItem, 0, len(items))
	lineItems := make([]models.LineItem, 0, len(items))

	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			lineItems[i].Quantity += item.Quantity
			orderItems[i].Quantity = lineItems[i].Quantity
			orderItems[i].Total = lineItems[i].LineTotal()
			continue
		}

		product, ok := catalog[item.ProductID]
		if !ok || product == nil {
			return nil, nil, errors.NewValidationError("items",
				fmt.Sprintf("product %s is no longer available", item.ProductID))
		}

		line := models.LineItem{
			ProductID: product.ID,
			UnitPrice: product.EffectivePrice(),
			Quantity:  item.Quantity,
		}
		index[item.ProductID] = len(lineItems)
		lineItems = append(lineItems, line)
		orderItems = append(orderItems, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Total:       line.LineTotal(),
		})
	}

	return orderItems, lineItems, nil
}

func productIDs(items []models.LineItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
