package cart

import (
	"context"
	"time"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
	"golang.org/x/sync/singleflight"
)

// CachedRemote is a read-through cache in front of a RemoteBackend.
// Concurrent misses for the same user share one backend load, and every
// successful mutation invalidates the cached snapshot.
type CachedRemote struct {
	backend RemoteBackend
	cache   SnapshotCache
	sfg     singleflight.Group
	logger  *logging.LoggerV2
}

func NewCachedRemote(backend RemoteBackend, cache SnapshotCache) *CachedRemote {
	return &CachedRemote{
		backend: backend,
		cache:   cache,
		logger:  logging.NewLoggerV2("cart-cache"),
	}
}

func (c *CachedRemote) Load(ctx context.Context, userID string) (models.CartSnapshot, error) {
	v, err, _ := c.sfg.Do(userID, func() (interface{}, error) {
		snap, found, err := c.cache.Get(ctx, userID)
		switch {
		case err != nil:
			metrics.CartCacheLookups.WithLabelValues("error").Inc()
			c.logger.Warn("Cart cache get failed", logging.Fields{
				"user_id": userID,
				"error":   err.Error(),
			})
		case found:
			metrics.CartCacheLookups.WithLabelValues("hit").Inc()
			return snap, nil
		default:
			metrics.CartCacheLookups.WithLabelValues("miss").Inc()
		}

		snap, err = c.backend.Load(ctx, userID)
		if err != nil {
			return nil, err
		}

		if err := c.cache.Set(ctx, userID, snap); err != nil {
			c.logger.Warn("Cart cache set failed", logging.Fields{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
		return snap, nil
	})
	if err != nil {
		return models.CartSnapshot{Owner: userID, Items: []models.CartEntry{}}, err
	}

	// Callers sharing a flight must not share the items slice.
	return v.(models.CartSnapshot).Clone(), nil
}

func (c *CachedRemote) AddItem(ctx context.Context, userID string, entry models.CartEntry) error {
	if err := c.backend.AddItem(ctx, userID, entry); err != nil {
		return err
	}
	c.invalidate(userID)
	return nil
}

func (c *CachedRemote) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	if err := c.backend.SetQuantity(ctx, userID, productID, quantity); err != nil {
		return err
	}
	c.invalidate(userID)
	return nil
}

func (c *CachedRemote) RemoveItem(ctx context.Context, userID, productID string) error {
	if err := c.backend.RemoveItem(ctx, userID, productID); err != nil {
		return err
	}
	c.invalidate(userID)
	return nil
}

func (c *CachedRemote) Clear(ctx context.Context, userID string) error {
	if err := c.backend.Clear(ctx, userID); err != nil {
		return err
	}
	c.invalidate(userID)
	return nil
}

// invalidate runs on a fresh context so a cancelled request still drops
// the stale entry.
func (c *CachedRemote) invalidate(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.cache.Delete(ctx, userID); err != nil {
		c.logger.Warn("Cart cache invalidate failed", logging.Fields{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}
