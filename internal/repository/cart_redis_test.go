package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func sampleSnapshot(owner string) models.CartSnapshot {
	return models.CartSnapshot{
		Owner: owner,
		Items: []models.CartEntry{
			{ProductID: "lamp", Name: "Brass Lamp", Price: decimal.NewFromInt(100), Quantity: 2},
		},
		UpdatedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRedisSessionCarts_SaveLoadDelete(t *testing.T) {
	client, mr := setupTestRedis(t)
	carts := NewRedisSessionCarts(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, carts.Save(ctx, "sess_1", sampleSnapshot("sess_1")))
	assert.Equal(t, time.Hour, mr.TTL(sessionCartPrefix+"sess_1"))

	snap, err := carts.Load(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.True(t, snap.Items[0].Price.Equal(decimal.NewFromInt(100)))

	require.NoError(t, carts.Delete(ctx, "sess_1"))
	snap, err = carts.Load(ctx, "sess_1")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
	assert.NotNil(t, snap.Items)
}

func TestRedisSessionCarts_CorruptBlobIsDropped(t *testing.T) {
	client, mr := setupTestRedis(t)
	carts := NewRedisSessionCarts(client, time.Hour)
	require.NoError(t, mr.Set(sessionCartPrefix+"sess_1", "{not json"))

	snap, err := carts.Load(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}

func TestRedisSessionCarts_Unavailable(t *testing.T) {
	client, mr := setupTestRedis(t)
	carts := NewRedisSessionCarts(client, time.Hour)
	mr.Close()

	_, err := carts.Load(context.Background(), "sess_1")
	assert.ErrorIs(t, err, errors.ErrBackendUnavailable)

	err = carts.Save(context.Background(), "sess_1", sampleSnapshot("sess_1"))
	assert.ErrorIs(t, err, errors.ErrBackendUnavailable)
}

func TestRedisCartCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisCartCache(client, time.Minute)
	ctx := context.Background()

	_, found, err := cache.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "user_1", sampleSnapshot("user_1")))
	assert.Equal(t, time.Minute, mr.TTL(userCartPrefix+"user_1"))

	snap, found, err := cache.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "user_1", snap.Owner)

	require.NoError(t, cache.Delete(ctx, "user_1"))
	_, found, err = cache.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisOrderCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisOrderCache(client, 0)
	ctx := context.Background()
	order := &models.Order{
		ID:     uuid.NewString(),
		UserID: "user_1",
		Status: models.OrderStatusPending,
		Total:  decimal.RequireFromString("325.50"),
	}

	got, err := cache.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, order))
	assert.Equal(t, defaultCacheTTL, mr.TTL(orderKeyPrefix+order.ID))

	got, err = cache.Get(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Total.Equal(order.Total))

	require.NoError(t, cache.Delete(ctx, order.ID))
	assert.False(t, mr.Exists(orderKeyPrefix+order.ID))
}
