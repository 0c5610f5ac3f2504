package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/cart"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  *int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// GetCart handles GET /api/v1/cart
func (h *Handlers) GetCart(c *gin.Context) {
	view, err := h.carts.View(c.Request.Context(), shopper(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// AddCartItem handles POST /api/v1/cart/items. The product is read from the
// catalog; stock is checked at order time, not here.
func (h *Handlers) AddCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	product, err := h.products.GetByID(c.Request.Context(), req.ProductID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			err = errors.NewValidationError("product_id", "product not found")
		}
		handleError(c, err)
		return
	}

	view, err := h.carts.Mutate(c.Request.Context(), shopper(c), func(ctx context.Context, st *cart.Store) error {
		return st.AddItem(ctx, *product, quantity)
	})
	h.respondCart(c, "add", view, err)
}

// UpdateCartItem handles PUT /api/v1/cart/items/:product_id
func (h *Handlers) UpdateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	productID := c.Param("product_id")

	view, err := h.carts.Mutate(c.Request.Context(), shopper(c), func(ctx context.Context, st *cart.Store) error {
		return st.UpdateQuantity(ctx, productID, *req.Quantity)
	})
	h.respondCart(c, "update", view, err)
}

// RemoveCartItem handles DELETE /api/v1/cart/items/:product_id
func (h *Handlers) RemoveCartItem(c *gin.Context) {
	productID := c.Param("product_id")

	view, err := h.carts.Mutate(c.Request.Context(), shopper(c), func(ctx context.Context, st *cart.Store) error {
		return st.RemoveItem(ctx, productID)
	})
	h.respondCart(c, "remove", view, err)
}

// ClearCart handles DELETE /api/v1/cart
func (h *Handlers) ClearCart(c *gin.Context) {
	view, err := h.carts.Mutate(c.Request.Context(), shopper(c), func(ctx context.Context, st *cart.Store) error {
		return st.ClearCart(ctx)
	})
	h.respondCart(c, "clear", view, err)
}

// LoginCart handles POST /api/v1/cart/login. It is called once the shopper
// has signed in on a device that may hold a guest cart.
func (h *Handlers) LoginCart(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	st, err := h.carts.Login(c.Request.Context(), userID, middleware.SessionID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, st.View())
}

// respondCart writes the cart after a mutation. A guest change that could
// not be saved is still shown, flagged degraded, since the device cart is
// updated optimistically.
func (h *Handlers) respondCart(c *gin.Context, op string, view models.CartView, err error) {
	if err == nil {
		c.JSON(http.StatusOK, view)
		return
	}
	h.logCartFailure(c, op, err)
	if errors.Is(err, cart.ErrUnsaved) {
		c.JSON(http.StatusOK, view)
		return
	}
	handleError(c, err)
}

func (h *Handlers) logCartFailure(c *gin.Context, op string, err error) {
	h.logger.Warn("Cart operation failed", logging.Fields{
		"operation":  op,
		"shopper":    shopper(c).Key(),
		"request_id": middleware.RequestIDFromContext(c.Request.Context()),
		"error":      err.Error(),
	})
}
