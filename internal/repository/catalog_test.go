package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

func TestPostgresProductRepository_GetByIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProductRepository(db, logging.NewLoggerV2("test"))

	rows := sqlmock.NewRows([]string{"id", "name", "price", "sale_price", "url", "stock"}).
		AddRow("lamp", "Brass Lamp", "100.00", "80.00", "lamp.jpg", 4).
		AddRow("vase", "Clay Vase", "50.00", nil, "", 0)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE p.id = ANY($1)`)).WillReturnRows(rows)

	products, err := repo.GetByIDs(context.Background(), []string{"lamp", "vase", "ghost"})
	require.NoError(t, err)

	require.Len(t, products, 2)
	assert.True(t, products["lamp"].EffectivePrice().Equal(decimal.NewFromInt(80)))
	assert.True(t, products["vase"].EffectivePrice().Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 4, products["lamp"].Stock)
	assert.NotContains(t, products, "ghost")
}

func TestPostgresProductRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresProductRepository(db, logging.NewLoggerV2("test"))

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE p.id = $1`)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPostgresPromotionRepository_GetByCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresPromotionRepository(db, logging.NewLoggerV2("test"))
	ends := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"code", "discount_type", "discount_value", "starts_at", "ends_at",
		"minimum_order_amount", "usage_limit", "usage_count", "active",
	}).AddRow("SAVE10", "percentage", "10.00", nil, ends, "500.00", 100, 3, true)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM promotion_codes`)).
		WithArgs("SAVE10").
		WillReturnRows(rows)

	promo, err := repo.GetByCode(context.Background(), "SAVE10")
	require.NoError(t, err)

	assert.Equal(t, models.DiscountTypePercentage, promo.DiscountType)
	assert.True(t, promo.DiscountValue.Equal(decimal.NewFromInt(10)))
	assert.Nil(t, promo.StartsAt)
	require.NotNil(t, promo.EndsAt)
	assert.Equal(t, ends, *promo.EndsAt)
	require.NotNil(t, promo.UsageLimit)
	assert.Equal(t, 100, *promo.UsageLimit)
	assert.Equal(t, 3, promo.UsageCount)
	assert.True(t, promo.Active)
}

func TestPostgresPromotionRepository_UnknownCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresPromotionRepository(db, logging.NewLoggerV2("test"))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM promotion_codes`)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByCode(context.Background(), "NOPE")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
