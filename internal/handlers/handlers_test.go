package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/cart"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/checkout"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/pricing"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/repository"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/service"
)

type catalog map[string]*models.Product

func (c catalog) GetByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return p, nil
}

func (c catalog) GetByIDs(_ context.Context, ids []string) (map[string]*models.Product, error) {
	out := map[string]*models.Product{}
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// unusedRemote fails every call; the HTTP tests only use guest carts.
type unusedRemote struct{}

func (unusedRemote) Load(context.Context, string) (models.CartSnapshot, error) {
	return models.CartSnapshot{}, errors.ErrBackendUnavailable
}
func (unusedRemote) AddItem(context.Context, string, models.CartEntry) error {
	return errors.ErrBackendUnavailable
}
func (unusedRemote) SetQuantity(context.Context, string, string, int) error {
	return errors.ErrBackendUnavailable
}
func (unusedRemote) RemoveItem(context.Context, string, string) error {
	return errors.ErrBackendUnavailable
}
func (unusedRemote) Clear(context.Context, string) error { return errors.ErrBackendUnavailable }

type fakeOrders struct {
	orders  map[string]*models.Order
	created *models.CreateOrderRequest
}

func (f *fakeOrders) CreateOrder(_ context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	f.created = req
	order := &models.Order{ID: "ord_new", UserID: req.UserID, Status: models.OrderStatusPending}
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return order, nil
}

func (f *fakeOrders) ListUserOrders(_ context.Context, userID string, limit, offset int) ([]*models.Order, int, error) {
	var out []*models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	if err := service.ValidateUpdateOrderStatusRequest(req); err != nil {
		return nil, err
	}
	order, ok := f.orders[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	order.Status = req.Status
	return order, nil
}

func (f *fakeOrders) CancelOrder(_ context.Context, id string, reason string) (*models.Order, error) {
	order := f.orders[id]
	if order.Status != models.OrderStatusPending {
		return nil, errors.NewValidationError("status", "order cannot be cancelled")
	}
	order.Status = models.OrderStatusCancelled
	return order, nil
}

type testEnv struct {
	router *gin.Engine
	orders *fakeOrders
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T, checks ...Check) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	carts := cart.NewService(unusedRemote{}, repository.NewRedisSessionCarts(client, time.Hour), cart.Options{})
	calculator := pricing.NewCalculator(pricing.DefaultRules(), pricing.FlatRatePolicy{Rate: decimal.RequireFromString("0.10")})
	sale := decimal.NewFromInt(80)
	products := catalog{
		"lamp": {ID: "lamp", Name: "Lamp", Price: decimal.NewFromInt(100), SalePrice: &sale, Stock: 5},
		"vase": {ID: "vase", Name: "Vase", Price: decimal.NewFromInt(50), Stock: 5},
	}
	orders := &fakeOrders{orders: map[string]*models.Order{
		"ord_1": {ID: "ord_1", UserID: "user_1", Status: models.OrderStatusPending},
		"ord_2": {ID: "ord_2", UserID: "user_2", Status: models.OrderStatusPending},
	}}
	orchestrator := checkout.NewOrchestrator(carts, orders, calculator, time.Second)

	h := NewHandlers(calculator, carts, products, orchestrator, orders, checks)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity())
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/live", h.Live)
	r.GET("/version", h.Version)
	fn := r.Group("/functions/v1", middleware.PublicCORS())
	fn.POST("/calculate-order-total", h.CalculateOrderTotal)
	fn.OPTIONS("/calculate-order-total", h.CalculateOrderTotalOptions)
	r.GET("/api/v1/cart", h.GetCart)
	r.DELETE("/api/v1/cart", h.ClearCart)
	r.POST("/api/v1/cart/items", h.AddCartItem)
	r.PUT("/api/v1/cart/items/:product_id", h.UpdateCartItem)
	r.DELETE("/api/v1/cart/items/:product_id", h.RemoveCartItem)
	r.POST("/api/v1/cart/login", h.LoginCart)
	r.POST("/api/v1/checkout", h.Checkout)
	r.POST("/api/v1/checkout/summary", h.CheckoutSummary)
	r.GET("/api/v1/checkout/status", h.CheckoutStatus)
	r.POST("/api/v1/orders", h.CreateOrder)
	r.GET("/api/v1/orders", h.ListOrders)
	r.GET("/api/v1/orders/:id", h.GetOrder)
	r.PATCH("/api/v1/orders/:id/status", h.UpdateOrderStatus)
	r.POST("/api/v1/orders/:id/cancel", h.CancelOrder)

	return &testEnv{router: r, orders: orders, redis: mr}
}

type call struct {
	method  string
	path    string
	body    string
	headers map[string]string
}

func (e *testEnv) do(c call) *httptest.ResponseRecorder {
	var body *bytes.Reader
	if c.body != "" {
		body = bytes.NewReader([]byte(c.body))
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func guest(session string) map[string]string {
	return map[string]string{middleware.HeaderSessionID: session}
}

func user(id string) map[string]string {
	return map[string]string{middleware.HeaderUserID: id}
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	decodeBody(t, w, &resp)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "storefront-service", resp["service"])
}

func TestLive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.Live(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReady(t *testing.T) {
	env := newTestEnv(t, Check{Name: "postgres", Ping: func(context.Context) error { return nil }})

	w := env.do(call{method: http.MethodGet, path: "/ready"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["postgres"])
}

func TestReady_DependencyDown(t *testing.T) {
	env := newTestEnv(t,
		Check{Name: "postgres", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return fmt.Errorf("connection refused") }},
	)

	w := env.do(call{method: http.MethodGet, path: "/ready"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, "connection refused", resp.Dependencies["redis"])
	assert.Equal(t, "ok", resp.Dependencies["postgres"])
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodGet, path: "/version"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"dev"`)
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"order creation failed", errors.NewOrderCreationFailed(fmt.Errorf("%w: lamp", errors.ErrOutOfStock)), http.StatusUnprocessableEntity, "insufficient stock: lamp"},
		{"validation", errors.NewValidationError("quantity", "quantity must be at least 1"), http.StatusBadRequest, "quantity must be at least 1"},
		{"empty cart", errors.ErrEmptyCart, http.StatusBadRequest, "cart is empty"},
		{"invalid input", errors.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
		{"auth", errors.ErrAuthRequired, http.StatusUnauthorized, "authentication required"},
		{"missing line", errors.ErrItemNotFound, http.StatusNotFound, "item not found in cart"},
		{"not found", fmt.Errorf("order ord_9: %w", errors.ErrNotFound), http.StatusNotFound, "not found"},
		{"in progress", errors.ErrCheckoutInProgress, http.StatusConflict, "checkout already in progress"},
		{"backend down", errors.Unavailable("load cart", fmt.Errorf("dial tcp")), http.StatusServiceUnavailable, "service temporarily unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "service temporarily unavailable"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			handleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var resp map[string]interface{}
			decodeBody(t, w, &resp)
			assert.Equal(t, tt.message, resp["error"])
		})
	}
}

func TestCalculateOrderTotal(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		totals [4]string
	}{
		{
			name:   "no promotion",
			body:   `{"items":[{"product_id":"lamp","unit_price":100,"quantity":2},{"product_id":"vase","unit_price":50,"quantity":1}]}`,
			totals: [4]string{"250", "0", "100", "350"},
		},
		{
			name:   "promotion code",
			body:   `{"items":[{"product_id":"lamp","unit_price":100,"quantity":2},{"product_id":"vase","unit_price":50,"quantity":1}],"promotion_code":"SAVE10"}`,
			totals: [4]string{"250", "25", "100", "325"},
		},
		{
			name:   "items as string",
			body:   `{"items":"[{\"product_id\":\"lamp\",\"price\":3000,\"quantity\":2}]"}`,
			totals: [4]string{"6000", "0", "0", "6000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(call{method: http.MethodPost, path: "/functions/v1/calculate-order-total", body: tt.body})

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var totals models.OrderTotals
			decodeBody(t, w, &totals)
			assert.Equal(t, tt.totals[0], totals.Subtotal.String())
			assert.Equal(t, tt.totals[1], totals.Discount.String())
			assert.Equal(t, tt.totals[2], totals.Shipping.String())
			assert.Equal(t, tt.totals[3], totals.Total.String())
		})
	}
}

func TestCalculateOrderTotal_Rejections(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{}`, `{"items":"nope"}`, `not json`, `{"items":[{"product_id":"lamp","quantity":1}]}`} {
		w := env.do(call{method: http.MethodPost, path: "/functions/v1/calculate-order-total", body: body})

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		var resp map[string]interface{}
		decodeBody(t, w, &resp)
		assert.NotEmpty(t, resp["error"], body)
	}
}

func TestCalculateOrderTotal_Preflight(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{
		method: http.MethodOptions,
		path:   "/functions/v1/calculate-order-total",
		headers: map[string]string{
			"Origin":                        "https://shop.example.com",
			"Access-Control-Request-Method": http.MethodPost,
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = env.do(call{method: http.MethodOptions, path: "/functions/v1/calculate-order-total"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestGuestCartFlow(t *testing.T) {
	env := newTestEnv(t)
	headers := guest("sess_1")

	w := env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"lamp","quantity":2}`, headers: headers})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"vase"}`, headers: headers})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(call{method: http.MethodGet, path: "/api/v1/cart", headers: headers})
	require.Equal(t, http.StatusOK, w.Code)
	var view models.CartView
	decodeBody(t, w, &view)
	assert.Equal(t, 3, view.ItemCount)
	assert.Equal(t, "210", view.Subtotal.String())
	assert.Equal(t, cart.SourceLocal, view.Source)

	w = env.do(call{method: http.MethodPut, path: "/api/v1/cart/items/lamp", body: `{"quantity":0}`, headers: headers})
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &view)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "vase", view.Items[0].ProductID)

	w = env.do(call{method: http.MethodDelete, path: "/api/v1/cart/items/vase", headers: headers})
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &view)
	assert.Empty(t, view.Items)
}

func TestGuestCart_UnsavedChangeIsShown(t *testing.T) {
	env := newTestEnv(t)
	headers := guest("sess_1")
	env.redis.SetError("ERR session store unavailable")

	w := env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"vase","quantity":2}`, headers: headers})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view models.CartView
	decodeBody(t, w, &view)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.True(t, view.Degraded)

	w = env.do(call{method: http.MethodDelete, path: "/api/v1/cart", headers: headers})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeBody(t, w, &view)
	assert.True(t, view.Degraded)
}

func TestAddCartItem_Rejections(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"ghost"}`, headers: guest("sess_1")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "product not found")

	w = env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"lamp","quantity":0}`, headers: guest("sess_1")})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"lamp"}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginCart_RequiresUser(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodPost, path: "/api/v1/cart/login", headers: guest("sess_1")})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodPost, path: "/api/v1/checkout", body: `{}`, headers: guest("sess_1")})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"cart is empty"}`, w.Body.String())
}

func TestCheckout_GuestMustSignIn(t *testing.T) {
	env := newTestEnv(t)
	headers := guest("sess_1")
	env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"vase"}`, headers: headers})

	w := env.do(call{method: http.MethodPost, path: "/api/v1/checkout", body: `{"payment_method":"card"}`, headers: headers})

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(call{method: http.MethodGet, path: "/api/v1/checkout/status", headers: headers})
	require.Equal(t, http.StatusOK, w.Code)
	var status checkout.Status
	decodeBody(t, w, &status)
	assert.Equal(t, checkout.StateFailed, status.State)
}

func TestCheckoutSummary(t *testing.T) {
	env := newTestEnv(t)
	headers := guest("sess_1")
	env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"lamp","quantity":2}`, headers: headers})
	env.do(call{method: http.MethodPost, path: "/api/v1/cart/items", body: `{"product_id":"vase"}`, headers: headers})

	w := env.do(call{method: http.MethodPost, path: "/api/v1/checkout/summary", body: `{"promotion_code":"save10"}`, headers: headers})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary checkout.Summary
	decodeBody(t, w, &summary)
	assert.Equal(t, "210", summary.Subtotal.String())
	assert.Equal(t, "21", summary.Discount.String())
	assert.Equal(t, "100", summary.Shipping.String())
	assert.Equal(t, "289", summary.Total.String())
	assert.Equal(t, 3, summary.ItemCount)
	assert.False(t, summary.Fallback)
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodPost, path: "/api/v1/orders", body: `{"user_id":"someone_else","payment_method":"card"}`, headers: user("user_1")})

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, env.orders.created)
	assert.Equal(t, "user_1", env.orders.created.UserID)

	w = env.do(call{method: http.MethodPost, path: "/api/v1/orders", body: `{}`})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodGet, path: "/api/v1/orders/ord_1", headers: user("user_1")})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(call{method: http.MethodGet, path: "/api/v1/orders/ord_2", headers: user("user_1")})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(call{method: http.MethodGet, path: "/api/v1/orders/ord_404", headers: user("user_1")})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodGet, path: "/api/v1/orders?limit=10", headers: user("user_1")})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Orders []models.Order `json:"orders"`
		Total  int            `json:"total"`
		Limit  int            `json:"limit"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 10, resp.Limit)
	assert.Equal(t, "ord_1", resp.Orders[0].ID)
}

func TestUpdateOrderStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodPatch, path: "/api/v1/orders/ord_1/status", body: `{"status":"confirmed"}`, headers: user("user_1")})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusConfirmed, env.orders.orders["ord_1"].Status)
}

func TestUpdateOrderStatus_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodPatch, path: "/api/v1/orders/ord_1/status", body: `{"status":"confirmed"}`})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(call{method: http.MethodPatch, path: "/api/v1/orders/ord_2/status", body: `{"status":"confirmed"}`, headers: user("user_1")})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.OrderStatusPending, env.orders.orders["ord_2"].Status)
}

func TestUpdateOrderStatus_CancelNeedsCancelEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodPatch, path: "/api/v1/orders/ord_1/status", body: `{"status":"cancelled"}`, headers: user("user_1")})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.OrderStatusPending, env.orders.orders["ord_1"].Status)
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(call{method: http.MethodPost, path: "/api/v1/orders/ord_2/cancel", body: `{"reason":"changed my mind"}`, headers: user("user_1")})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(call{method: http.MethodPost, path: "/api/v1/orders/ord_1/cancel", body: `{"reason":"changed my mind"}`, headers: user("user_1")})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusCancelled, env.orders.orders["ord_1"].Status)
}
