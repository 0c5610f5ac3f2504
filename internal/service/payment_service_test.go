package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

func TestApplyPaymentOutcome(t *testing.T) {
	tests := []struct {
		outcome PaymentOutcome
		want    models.OrderStatus
	}{
		{PaymentCompleted, models.OrderStatusConfirmed},
		{PaymentFailed, models.OrderStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			order, err := h.service.CreateOrder(ctx, validRequest())
			require.NoError(t, err)

			payments := NewPaymentService(h.service)
			require.NoError(t, payments.ApplyPaymentOutcome(ctx, order.ID, tt.outcome))

			got, err := h.orders.GetByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)

			// Redelivery is a no-op.
			assert.NoError(t, payments.ApplyPaymentOutcome(ctx, order.ID, tt.outcome))
		})
	}
}

func TestApplyPaymentOutcome_Refund(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	order, err := h.service.CreateOrder(ctx, validRequest())
	require.NoError(t, err)

	payments := NewPaymentService(h.service)
	require.NoError(t, payments.ApplyPaymentOutcome(ctx, order.ID, PaymentCompleted))
	require.NoError(t, payments.ApplyPaymentOutcome(ctx, order.ID, PaymentRefunded))

	got, err := h.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefunded, got.Status)
}

func TestApplyPaymentOutcome_Unknown(t *testing.T) {
	payments := NewPaymentService(newHarness().service)

	assert.ErrorIs(t, payments.ApplyPaymentOutcome(context.Background(), "order-1", "chargeback"), errors.ErrInvalidInput)
	assert.ErrorIs(t, payments.ApplyPaymentOutcome(context.Background(), "missing", PaymentCompleted), errors.ErrNotFound)
}
