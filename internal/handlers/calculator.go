package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/pricing"
)

// CalculateOrderTotal handles POST /functions/v1/calculate-order-total.
// Every rejection is a 400 with an {error} body; only a failed promotion
// lookup is reported as 503.
func (h *Handlers) CalculateOrderTotal(c *gin.Context) {
	var wire pricing.WireRequest
	if err := c.ShouldBindJSON(&wire); err != nil {
		metrics.PricingCalculations.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	req, err := wire.Decode()
	if err != nil {
		metrics.PricingCalculations.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": errorMessage(err)})
		return
	}

	totals, err := h.calculator.Calculate(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, errors.ErrBackendUnavailable) {
			metrics.PricingCalculations.WithLabelValues("error").Inc()
			h.logger.Error("Order total calculation failed", logging.Fields{"error": err.Error()})
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "promotion service unavailable"})
			return
		}
		metrics.PricingCalculations.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": errorMessage(err)})
		return
	}

	metrics.PricingCalculations.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, totals)
}

// CalculateOrderTotalOptions answers bare OPTIONS requests; preflights are
// answered by the CORS middleware.
func (h *Handlers) CalculateOrderTotalOptions(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func errorMessage(err error) string {
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}
