package service

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// PaymentOutcome is the result reported by the payment provider.
type PaymentOutcome string

const (
	PaymentCompleted PaymentOutcome = "completed"
	PaymentFailed    PaymentOutcome = "failed"
	PaymentRefunded  PaymentOutcome = "refunded"
)

// PaymentService applies payment outcomes to orders.
type PaymentService struct {
	orders *OrderService
	logger *logging.LoggerV2
}

// NewPaymentService creates a new payment service.
func NewPaymentService(orders *OrderService) *PaymentService {
	return &PaymentService{
		orders: orders,
		logger: logging.NewLoggerV2("payment-service"),
	}
}

// ApplyPaymentOutcome confirms, cancels or refunds the order. Redelivered
// outcomes for an order already in the target state are ignored.
func (s *PaymentService) ApplyPaymentOutcome(ctx context.Context, orderID string, outcome PaymentOutcome) error {
	target, ok := outcomeStatus(outcome)
	if !ok {
		return errors.NewValidationError("status", "unknown payment outcome "+string(outcome))
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == target {
		s.logger.Debug("Payment outcome already applied", logging.Fields{
			"order_id": orderID,
			"outcome":  outcome,
		})
		return nil
	}

	s.logger.Info("Applying payment outcome", logging.Fields{
		"order_id": orderID,
		"outcome":  outcome,
		"from":     order.Status,
	})

	if outcome == PaymentFailed {
		_, err = s.orders.CancelOrder(ctx, orderID, "Payment failed")
		return err
	}

	_, err = s.orders.UpdateOrderStatus(ctx, orderID, &models.UpdateOrderStatusRequest{
		Status: target,
		Notes:  "Payment " + string(outcome),
	})
	return err
}

func outcomeStatus(outcome PaymentOutcome) (models.OrderStatus, bool) {
	switch outcome {
	case PaymentCompleted:
		return models.OrderStatusConfirmed, true
	case PaymentFailed:
		return models.OrderStatusCancelled, true
	case PaymentRefunded:
		return models.OrderStatusRefunded, true
	}
	return "", false
}
