package service

import (
	"context"
	"fmt"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/pricing"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/repository"
)

// OrderEventPublisher announces order lifecycle changes.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *models.Order, previousStatus models.OrderStatus) error
	PublishOrderCancelled(ctx context.Context, order *models.Order, reason string) error
}

// TotalsCalculator prices line items.
type TotalsCalculator interface {
	Calculate(ctx context.Context, req pricing.Request) (*models.OrderTotals, error)
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// OrderService handles order business logic.
type OrderService struct {
	orderRepo      repository.OrderRepository
	orderCache     repository.OrderCache
	productRepo    repository.ProductRepository
	calculator     TotalsCalculator
	eventPublisher OrderEventPublisher
	config         *config.Config
	logger         *logging.LoggerV2
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	orderCache repository.OrderCache,
	productRepo repository.ProductRepository,
	calculator TotalsCalculator,
	eventPublisher OrderEventPublisher,
	cfg *config.Config,
) *OrderService {
	return &OrderService{
		orderRepo:      orderRepo,
		orderCache:     orderCache,
		productRepo:    productRepo,
		calculator:     calculator,
		eventPublisher: eventPublisher,
		config:         cfg,
		logger:         logging.NewLoggerV2("order-service"),
	}
}

// CreateOrder prices the request against the catalog and persists it.
// Prices supplied by the caller are ignored.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	s.logger.Info("Creating order", logging.Fields{
		"user_id":    req.UserID,
		"item_count": len(req.Items),
	})

	if err := ValidateCreateOrderRequest(req); err != nil {
		return nil, err
	}

	catalog, err := s.productRepo.GetByIDs(ctx, productIDs(req.Items))
	if err != nil {
		s.logger.Error("Failed to load products", logging.Fields{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		return nil, err
	}

	orderItems, lineItems, err := repriceItems(req.Items, catalog)
	if err != nil {
		return nil, err
	}

	code := pricing.NormalizeCode(req.PromotionCode)
	totals, err := s.calculator.Calculate(ctx, pricing.Request{Items: lineItems, PromotionCode: code})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          req.UserID,
		Items:           orderItems,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PromotionCode:   code,
		Subtotal:        totals.Subtotal,
		Discount:        totals.Discount,
		Shipping:        totals.Shipping,
		Total:           totals.Total,
		Currency:        s.config.Pricing.Currency,
		Notes:           SanitizeOrderNotes(req.Notes),
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("Failed to create order", logging.Fields{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		return nil, err
	}
	metrics.OrdersCreated.Inc()

	if s.config.Features.EnableOrderCaching {
		if err := s.orderCache.Set(ctx, order); err != nil {
			// Log but don't fail
			s.logger.Error("Failed to cache order", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	if s.config.Features.EnableOrderEvents {
		err := s.eventPublisher.PublishOrderCreated(ctx, order)
		s.recordEvent("order.created", err)
		if err != nil {
			s.logger.Error("Failed to publish order created event", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	s.logger.Info("Order created successfully", logging.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total.String(),
	})

	return order, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.logger.Debug("Getting order", logging.Fields{"order_id": id})

	if s.config.Features.EnableOrderCaching {
		if order, err := s.orderCache.Get(ctx, id); err == nil && order != nil {
			s.logger.Debug("Order found in cache", logging.Fields{"order_id": id})
			return order, nil
		}
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.ErrNotFound
	}

	if s.config.Features.EnableOrderCaching {
		_ = s.orderCache.Set(ctx, order)
	}

	return order, nil
}

// ListUserOrders pages through a user's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error) {
	s.logger.Debug("Listing user orders", logging.Fields{
		"user_id": userID,
		"limit":   limit,
		"offset":  offset,
	})

	if userID == "" {
		return nil, 0, errors.ErrAuthRequired
	}
	if offset < 0 {
		return nil, 0, errors.NewValidationError("offset", "offset cannot be negative")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	return s.orderRepo.ListByUser(ctx, userID, limit, offset)
}

// UpdateOrderStatus moves an order along the fulfilment lifecycle.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	s.logger.Info("Updating order status", logging.Fields{
		"order_id":   id,
		"new_status": req.Status,
	})

	if err := ValidateUpdateOrderStatusRequest(req); err != nil {
		return nil, err
	}

	current, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !isValidStatusTransition(current.Status, req.Status) {
		return nil, errors.NewValidationError("status", fmt.Sprintf(
			"invalid status transition from %s to %s",
			current.Status,
			req.Status,
		))
	}

	previousStatus := current.Status

	order, err := s.orderRepo.UpdateStatus(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)

	if s.config.Features.EnableOrderEvents {
		err := s.eventPublisher.PublishOrderStatusChanged(ctx, order, previousStatus)
		s.recordEvent("order.status_changed", err)
		if err != nil {
			s.logger.Error("Failed to publish status change event", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	return order, nil
}

// CancelOrder cancels a pending or confirmed order and restocks its items.
func (s *OrderService) CancelOrder(ctx context.Context, id string, reason string) (*models.Order, error) {
	s.logger.Info("Cancelling order", logging.Fields{
		"order_id": id,
		"reason":   reason,
	})

	if err := ValidateCancellationReason(reason); err != nil {
		return nil, err
	}

	current, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.CanCancel() {
		return nil, errors.NewValidationError("status", "order cannot be cancelled in current state")
	}

	order, err := s.orderRepo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)

	if s.config.Features.EnableOrderEvents {
		err := s.eventPublisher.PublishOrderCancelled(ctx, order, reason)
		s.recordEvent("order.cancelled", err)
		if err != nil {
			s.logger.Error("Failed to publish order cancelled event", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	return order, nil
}

func (s *OrderService) invalidate(ctx context.Context, id string) {
	if !s.config.Features.EnableOrderCaching {
		return
	}
	if err := s.orderCache.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate cached order", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
	}
}

func (s *OrderService) recordEvent(eventType string, err error) {
	metrics.EventsPublished.WithLabelValues(eventType, metrics.Result(err)).Inc()
}

func isValidStatusTransition(from, to models.OrderStatus) bool {
	validTransitions := map[models.OrderStatus][]models.OrderStatus{
		models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusCancelled},
		models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled, models.OrderStatusRefunded},
		models.OrderStatusProcessing: {models.OrderStatusShipped},
		models.OrderStatusShipped:    {models.OrderStatusDelivered},
		models.OrderStatusDelivered:  {models.OrderStatusRefunded},
		models.OrderStatusCancelled:  {},
		models.OrderStatusRefunded:   {},
	}

	for _, status := range validTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}
