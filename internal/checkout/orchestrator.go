// Package checkout turns a shopper's cart into a persisted order.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/cart"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/pricing"
)

// OrderCreator performs authoritative pricing, inventory deduction and
// persistence of an order.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)
}

// TotalsCalculator prices a set of line items.
type TotalsCalculator interface {
	Calculate(ctx context.Context, req pricing.Request) (*models.OrderTotals, error)
}

// Carts is the part of cart.Service the orchestrator needs.
type Carts interface {
	Open(ctx context.Context, shopper cart.Shopper) (*cart.Store, error)
	Mutate(ctx context.Context, shopper cart.Shopper, fn func(ctx context.Context, st *cart.Store) error) (models.CartView, error)
}

// Submission carries the shopper's shipping and payment choices.
type Submission struct {
	ShippingAddress models.Address       `json:"shipping_address"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	PromotionCode   string               `json:"promotion_code,omitempty"`
	Notes           string               `json:"notes,omitempty"`
}

// Confirmation identifies the order created by a successful checkout.
type Confirmation struct {
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	Status      models.OrderStatus `json:"status"`
	Totals      models.OrderTotals `json:"totals"`
}

// Summary previews the totals of the current cart.
type Summary struct {
	models.OrderTotals
	ItemCount     int    `json:"item_count"`
	PromotionCode string `json:"promotion_code,omitempty"`
	// Fallback is set when the calculator was unreachable and only the
	// subtotal could be computed.
	Fallback bool `json:"fallback,omitempty"`
}

// Orchestrator drives a cart through order creation.
type Orchestrator struct {
	carts      Carts
	orders     OrderCreator
	calculator TotalsCalculator
	timeout    time.Duration
	tracker    *tracker
	logger     *logging.LoggerV2
}

func NewOrchestrator(carts Carts, orders OrderCreator, calculator TotalsCalculator, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		carts:      carts,
		orders:     orders,
		calculator: calculator,
		timeout:    timeout,
		tracker:    newTracker(),
		logger:     logging.NewLoggerV2("checkout"),
	}
}

// Checkout submits the shopper's cart as an order and clears the cart once
// the order exists. The cart is left untouched when the order is rejected.
func (o *Orchestrator) Checkout(ctx context.Context, shopper cart.Shopper, sub Submission) (*Confirmation, error) {
	if !o.tracker.begin(shopper.Key()) {
		metrics.CheckoutSubmissions.WithLabelValues("in_progress").Inc()
		return nil, errors.ErrCheckoutInProgress
	}

	var conf *Confirmation
	_, err := o.carts.Mutate(ctx, shopper, func(ctx context.Context, st *cart.Store) error {
		var err error
		conf, err = o.submit(ctx, st, sub)
		return err
	})

	if err != nil {
		o.tracker.fail(shopper.Key(), err)
		metrics.CheckoutSubmissions.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}

	o.tracker.succeed(shopper.Key(), conf)
	metrics.CheckoutSubmissions.WithLabelValues("success").Inc()
	return conf, nil
}

func (o *Orchestrator) submit(ctx context.Context, st *cart.Store, sub Submission) (*Confirmation, error) {
	// A degraded store holds a stand-in snapshot, not the shopper's cart.
	if st.Degraded() {
		return nil, errors.Unavailable("load cart", st.LoadError())
	}
	snap := st.Snapshot()
	if snap.IsEmpty() {
		return nil, errors.ErrEmptyCart
	}
	shopper := st.Shopper()
	if !shopper.Authenticated() {
		return nil, errors.ErrAuthRequired
	}

	req := &models.CreateOrderRequest{
		UserID:          shopper.UserID,
		Items:           snap.LineItems(),
		ShippingAddress: sub.ShippingAddress,
		PaymentMethod:   sub.PaymentMethod,
		PromotionCode:   pricing.NormalizeCode(sub.PromotionCode),
		Notes:           sub.Notes,
	}

	o.logger.Info("Submitting order", logging.Fields{
		"user_id":    shopper.UserID,
		"item_count": snap.ItemCount(),
	})

	order, err := o.createOrder(ctx, req)
	if err != nil {
		o.logger.Warn("Order rejected", logging.Fields{
			"user_id": shopper.UserID,
			"error":   err.Error(),
		})
		return nil, errors.NewOrderCreationFailed(err)
	}

	// The order exists from here on, so a failed clear is not the
	// shopper's problem.
	if err := st.ClearCart(ctx); err != nil {
		o.logger.Error("Cart not cleared after checkout", logging.Fields{
			"user_id":  shopper.UserID,
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}

	o.logger.Info("Checkout complete", logging.Fields{
		"user_id":      shopper.UserID,
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	})

	return &Confirmation{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Totals:      order.Totals(),
	}, nil
}

func (o *Orchestrator) createOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return o.orders.CreateOrder(ctx, req)
}

// CalculateOrderSummary prices the shopper's cart. When the calculator
// cannot be reached the summary carries the subtotal only. An invalid
// promotion code is returned as an error.
func (o *Orchestrator) CalculateOrderSummary(ctx context.Context, shopper cart.Shopper, promotionCode string) (*Summary, error) {
	st, err := o.carts.Open(ctx, shopper)
	if err != nil {
		return nil, err
	}
	snap := st.Snapshot()
	items := snap.LineItems()
	code := pricing.NormalizeCode(promotionCode)

	summary := &Summary{ItemCount: snap.ItemCount(), PromotionCode: code}

	totals, err := o.calculator.Calculate(ctx, pricing.Request{Items: items, PromotionCode: code})
	switch {
	case err == nil:
		summary.OrderTotals = *totals
		return summary, nil
	case errors.Is(err, errors.ErrInvalidInput):
		return nil, err
	}

	metrics.SummaryFallbacks.Inc()
	o.logger.Warn("Order total calculation failed, using subtotal only", logging.Fields{
		"shopper": shopper.Key(),
		"error":   err.Error(),
	})
	summary.OrderTotals = pricing.SubtotalOnly(items)
	summary.Fallback = true
	return summary, nil
}

// Status reports the shopper's most recent checkout.
func (o *Orchestrator) Status(shopper cart.Shopper) Status {
	return o.tracker.get(shopper.Key())
}

func outcome(err error) string {
	switch {
	case errors.Is(err, errors.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, errors.ErrAuthRequired):
		return "unauthenticated"
	default:
		var failed *errors.OrderCreationFailedError
		if errors.As(err, &failed) {
			return "rejected"
		}
		return "error"
	}
}

// State is a shopper's position in the checkout flow.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// Status is the last known checkout state for a shopper.
type Status struct {
	State        State         `json:"state"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`
	Error        string        `json:"error,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// statusRetention is how long a finished checkout stays visible to Status.
const statusRetention = 30 * time.Minute

// tracker records per-shopper checkout state. Only Submitting blocks a new
// checkout; a failed or finished one may be followed by another. Finished
// entries are forgotten after retention.
type tracker struct {
	mu        sync.Mutex
	statuses  map[string]Status
	now       func() time.Time
	retention time.Duration
	lastSweep time.Time
}

func newTracker() *tracker {
	return &tracker{statuses: make(map[string]Status), now: time.Now, retention: statusRetention}
}

func (t *tracker) begin(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.sweepLocked(now)
	if t.statuses[key].State == StateSubmitting {
		return false
	}
	t.statuses[key] = Status{State: StateSubmitting, UpdatedAt: now}
	return true
}

func (t *tracker) succeed(key string, conf *Confirmation) {
	t.set(key, Status{State: StateSuccess, Confirmation: conf, UpdatedAt: t.now()})
}

func (t *tracker) fail(key string, err error) {
	t.set(key, Status{State: StateFailed, Error: err.Error(), UpdatedAt: t.now()})
}

func (t *tracker) set(key string, s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[key] = s
}

func (t *tracker) get(key string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[key]
	if !ok {
		return Status{State: StateIdle}
	}
	if t.expired(s, t.now()) {
		delete(t.statuses, key)
		return Status{State: StateIdle}
	}
	return s
}

func (t *tracker) expired(s Status, now time.Time) bool {
	return s.State != StateSubmitting && now.Sub(s.UpdatedAt) > t.retention
}

// sweepLocked drops expired entries, at most once per retention period.
func (t *tracker) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < t.retention {
		return
	}
	for key, s := range t.statuses {
		if t.expired(s, now) {
			delete(t.statuses, key)
		}
	}
	t.lastSweep = now
}
