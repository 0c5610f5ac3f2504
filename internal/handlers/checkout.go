package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/checkout"
)

type summaryRequest struct {
	PromotionCode string `json:"promotion_code"`
}

// CheckoutSummary handles POST /api/v1/checkout/summary
func (h *Handlers) CheckoutSummary(c *gin.Context) {
	var req summaryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	summary, err := h.checkout.CalculateOrderSummary(c.Request.Context(), shopper(c), req.PromotionCode)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Checkout handles POST /api/v1/checkout
func (h *Handlers) Checkout(c *gin.Context) {
	var sub checkout.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	conf, err := h.checkout.Checkout(c.Request.Context(), shopper(c), sub)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conf)
}

// CheckoutStatus handles GET /api/v1/checkout/status
func (h *Handlers) CheckoutStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.checkout.Status(shopper(c)))
}
