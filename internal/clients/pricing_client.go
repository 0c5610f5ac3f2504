// Package clients holds HTTP clients for services this one depends on.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/pricing"
)

const calculatePath = "/functions/v1/calculate-order-total"

// HTTPPricingClient calls a remote order-total endpoint. Calls go through a
// circuit breaker; rejected requests do not count as failures.
type HTTPPricingClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	breaker    *gobreaker.CircuitBreaker[*models.OrderTotals]
	logger     *logging.LoggerV2
}

// NewHTTPPricingClient creates a new HTTP-based pricing client.
func NewHTTPPricingClient(cfg config.ServiceConfig, logger *logging.LoggerV2) *HTTPPricingClient {
	c := &HTTPPricingClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey: cfg.APIKey,
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*models.OrderTotals](gobreaker.Settings{
		Name:        "pricing",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errors.ErrInvalidInput)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", logging.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return c
}

type calculateResponse struct {
	models.OrderTotals
	Error string `json:"error"`
}

// Calculate asks the remote endpoint for order totals.
func (c *HTTPPricingClient) Calculate(ctx context.Context, req pricing.Request) (*models.OrderTotals, error) {
	totals, err := c.breaker.Execute(func() (*models.OrderTotals, error) {
		return c.calculate(ctx, req)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.Unavailable("pricing service", err)
	}
	return totals, err
}

func (c *HTTPPricingClient) calculate(ctx context.Context, req pricing.Request) (*models.OrderTotals, error) {
	c.logger.Debug("Calculating order total", logging.Fields{
		"item_count": len(req.Items),
		"has_code":   req.PromotionCode != "",
	})

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+calculatePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(ctx, httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Pricing request failed", logging.Fields{"error": err.Error()})
		return nil, errors.Unavailable("pricing service", err)
	}
	defer resp.Body.Close()

	var result calculateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil && resp.StatusCode == http.StatusOK {
		return nil, errors.Unavailable("pricing service", fmt.Errorf("decode response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return &result.OrderTotals, nil
	case resp.StatusCode == http.StatusBadRequest:
		msg := result.Error
		if msg == "" {
			msg = "order total request rejected"
		}
		return nil, errors.NewValidationError("request", msg)
	default:
		c.logger.Error("Pricing service returned error", logging.Fields{
			"status_code": resp.StatusCode,
		})
		return nil, errors.Unavailable("pricing service", fmt.Errorf("status %d", resp.StatusCode))
	}
}

func (c *HTTPPricingClient) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(middleware.HeaderRequestID, requestID)
	}
}
