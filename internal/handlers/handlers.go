package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/cart"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/checkout"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/repository"
)

// OrderAPI is the order service as used over HTTP.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error)
	UpdateOrderStatus(ctx context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, id string, reason string) (*models.Order, error)
}

// Check is a named dependency probed by the readiness endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handlers holds all HTTP handlers for the storefront service.
type Handlers struct {
	calculator checkout.TotalsCalculator
	carts      *cart.Service
	products   repository.ProductRepository
	checkout   *checkout.Orchestrator
	orders     OrderAPI
	checks     []Check
	logger     *logging.LoggerV2
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	calculator checkout.TotalsCalculator,
	carts *cart.Service,
	products repository.ProductRepository,
	orchestrator *checkout.Orchestrator,
	orders OrderAPI,
	checks []Check,
) *Handlers {
	return &Handlers{
		calculator: calculator,
		carts:      carts,
		products:   products,
		checkout:   orchestrator,
		orders:     orders,
		checks:     checks,
		logger:     logging.NewLoggerV2("handlers"),
	}
}

func shopper(c *gin.Context) cart.Shopper {
	return cart.Shopper{
		UserID:    middleware.UserID(c),
		SessionID: middleware.SessionID(c),
	}
}

func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		handleError(c, errors.ErrAuthRequired)
		return "", false
	}
	return userID, true
}

// handleError maps domain errors to HTTP responses.
func handleError(c *gin.Context, err error) {
	var failed *errors.OrderCreationFailedError
	if errors.As(err, &failed) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": failed.Message})
		return
	}

	var validationErr *errors.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   validationErr.Message,
			"field":   validationErr.Field,
			"details": validationErr.Details,
		})
		return
	}

	switch {
	case errors.Is(err, errors.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
	case errors.Is(err, errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case errors.Is(err, errors.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, errors.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found in cart"})
	case errors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errors.ErrCheckoutInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "checkout already in progress"})
	case errors.Is(err, errors.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		logging.NewLoggerV2("handlers").Error("Unhandled error", logging.Fields{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
