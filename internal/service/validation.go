package service

import (
	"strings"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

const maxNotesLength = 1000

// ValidateCreateOrderRequest validates an order creation request.
func ValidateCreateOrderRequest(req *models.CreateOrderRequest) error {
	if req.UserID == "" {
		return errors.NewValidationError("user_id", "user ID is required")
	}

	if len(req.Items) == 0 {
		return errors.NewValidationError("items", "at least one item is required")
	}

	for _, item := range req.Items {
		if item.ProductID == "" {
			return errors.NewValidationError("items", "product ID is required for item")
		}
		if item.Quantity <= 0 {
			return errors.NewValidationError("items", "quantity must be positive")
		}
	}

	if err := validateAddress(&req.ShippingAddress, "shipping_address"); err != nil {
		return err
	}

	if req.PaymentMethod == "" {
		return errors.NewValidationError("payment_method", "payment method is required")
	}
	if !req.PaymentMethod.Valid() {
		return errors.NewValidationError("payment_method", "invalid payment method")
	}

	return nil
}

func validateAddress(addr *models.Address, field string) error {
	if strings.TrimSpace(addr.FullName) == "" {
		return errors.NewValidationError(field, "full name is required")
	}

	if addr.Line1 == "" {
		return errors.NewValidationError(field, "address line 1 is required")
	}

	if addr.City == "" {
		return errors.NewValidationError(field, "city is required")
	}

	if addr.PostalCode == "" {
		return errors.NewValidationError(field, "postal code is required")
	}

	if addr.Country == "" {
		return errors.NewValidationError(field, "country is required")
	}

	if len(addr.Country) != 2 {
		return errors.NewValidationError(field, "country must be a 2-letter ISO code")
	}

	return nil
}

// ValidateUpdateOrderStatusRequest validates a status update request.
func ValidateUpdateOrderStatusRequest(req *models.UpdateOrderStatusRequest) error {
	if req.Status == "" {
		return errors.NewValidationError("status", "status is required")
	}

	switch req.Status {
	case models.OrderStatusPending,
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
		models.OrderStatusRefunded:
	case models.OrderStatusCancelled:
		// Cancelling restocks the order, which only CancelOrder does.
		return errors.NewValidationError("status", "orders are cancelled through the cancel endpoint")
	default:
		return errors.NewValidationError("status", "invalid order status")
	}

	return nil
}

// SanitizeOrderNotes bounds order notes to maxNotesLength characters and
// escapes markup. Truncation happens first so no rune or entity is split.
func SanitizeOrderNotes(notes string) string {
	notes = strings.TrimSpace(notes)

	if runes := []rune(notes); len(runes) > maxNotesLength {
		notes = string(runes[:maxNotesLength])
	}

	notes = strings.ReplaceAll(notes, "<", "&lt;")
	notes = strings.ReplaceAll(notes, ">", "&gt;")
	notes = strings.ReplaceAll(notes, "\"", "&quot;")

	return notes
}

// ValidateCancellationReason validates an order cancellation reason.
func ValidateCancellationReason(reason string) error {
	if reason == "" {
		return errors.NewValidationError("reason", "cancellation reason is required")
	}

	if len(reason) > 500 {
		return errors.NewValidationError("reason", "cancellation reason too long (max 500 characters)")
	}

	return nil
}
