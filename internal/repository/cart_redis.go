package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

const (
	sessionCartPrefix = "cart:session:"
	userCartPrefix    = "cart:user:"
)

// RedisSessionCarts stores anonymous carts as one JSON blob per session.
// The TTL is refreshed on every save.
type RedisSessionCarts struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.LoggerV2
}

func NewRedisSessionCarts(client *redis.Client, ttl time.Duration) *RedisSessionCarts {
	return &RedisSessionCarts{
		client: client,
		ttl:    ttl,
		logger: logging.NewLoggerV2("session-carts"),
	}
}

// Load returns the session's cart, or an empty one when none is stored.
func (s *RedisSessionCarts) Load(ctx context.Context, sessionID string) (models.CartSnapshot, error) {
	empty := models.CartSnapshot{Owner: sessionID, Items: []models.CartEntry{}}

	data, err := s.client.Get(ctx, sessionCartPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return empty, nil
	}
	if err != nil {
		return empty, errors.Unavailable("load session cart", err)
	}

	var snap models.CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt blob is dropped rather than blocking the shopper.
		s.logger.Warn("Discarding unreadable session cart", logging.Fields{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return empty, nil
	}
	if snap.Items == nil {
		snap.Items = []models.CartEntry{}
	}
	return snap, nil
}

func (s *RedisSessionCarts) Save(ctx context.Context, sessionID string, snap models.CartSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionCartPrefix+sessionID, data, s.ttl).Err(); err != nil {
		s.logger.Error("Failed to save session cart", logging.Fields{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return errors.Unavailable("save session cart", err)
	}
	return nil
}

func (s *RedisSessionCarts) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionCartPrefix+sessionID).Err(); err != nil {
		return errors.Unavailable("delete session cart", err)
	}
	return nil
}

// RedisCartCache caches materialized remote carts.
type RedisCartCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartCache(client *redis.Client, ttl time.Duration) *RedisCartCache {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCartCache{client: client, ttl: ttl}
}

// Get reports found=false on a miss.
func (c *RedisCartCache) Get(ctx context.Context, userID string) (models.CartSnapshot, bool, error) {
	data, err := c.client.Get(ctx, userCartPrefix+userID).Bytes()
	if err == redis.Nil {
		return models.CartSnapshot{}, false, nil
	}
	if err != nil {
		return models.CartSnapshot{}, false, err
	}

	var snap models.CartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.CartSnapshot{}, false, err
	}
	if snap.Items == nil {
		snap.Items = []models.CartEntry{}
	}
	return snap, true, nil
}

func (c *RedisCartCache) Set(ctx context.Context, userID string, snap models.CartSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userCartPrefix+userID, data, c.ttl).Err()
}

func (c *RedisCartCache) Delete(ctx context.Context, userID string) error {
	return c.client.Del(ctx, userCartPrefix+userID).Err()
}
