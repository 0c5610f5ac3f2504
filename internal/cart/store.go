package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// Store is one shopper's cart. Writes are serialised by mu.
type Store struct {
	mu       sync.Mutex
	shopper  Shopper
	remote   RemoteBackend
	local    LocalBackend
	snap     models.CartSnapshot
	degraded bool
	loadErr  error
	unsaved  bool
	timeout  time.Duration
	now      func() time.Time
	logger   *logging.LoggerV2
}

// Shopper returns the owner of the cart.
func (s *Store) Shopper() Shopper {
	return s.shopper
}

// Source is SourceRemote for signed-in shoppers and SourceLocal otherwise.
func (s *Store) Source() string {
	if s.shopper.Authenticated() {
		return SourceRemote
	}
	return SourceLocal
}

// Degraded reports whether the initial load fell back to a stale or empty
// snapshot.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// LoadError is the backend error that made the store degraded, if any.
func (s *Store) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() models.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.ItemCount()
}

func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Subtotal()
}

// View returns the cart as served to clients.
func (s *Store) View() models.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap.Clone()
	return models.CartView{
		Items:     snap.Items,
		ItemCount: snap.ItemCount(),
		Subtotal:  snap.Subtotal(),
		Source:    s.Source(),
		Degraded:  s.degraded || s.unsaved,
		UpdatedAt: snap.UpdatedAt,
	}
}

// AddItem adds quantity units of product, incrementing an existing line.
// Stock is not checked here.
func (s *Store) AddItem(ctx context.Context, product models.Product, quantity int) error {
	if quantity < 1 {
		return errors.NewValidationError("quantity", "quantity must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := models.EntryFromProduct(product, quantity, s.now())

	if s.shopper.Authenticated() {
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.remote.AddItem(ctx, s.shopper.UserID, entry)
		})
		s.record("add", err)
		if err != nil {
			return err
		}
		s.applyAdd(entry)
		return nil
	}

	s.applyAdd(entry)
	return s.persistLocal(ctx, "add")
}

// RemoveItem deletes the line. Removing an absent product succeeds.
func (s *Store) RemoveItem(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, productID)
}

// UpdateQuantity sets the line's quantity; zero or less removes it. A
// product missing from a remote cart yields errors.ErrItemNotFound while a
// missing local line is ignored.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		return s.removeLocked(ctx, productID)
	}

	if s.shopper.Authenticated() {
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.remote.SetQuantity(ctx, s.shopper.UserID, productID, quantity)
		})
		s.record("update", err)
		if err != nil {
			return err
		}
		if i := s.snap.Find(productID); i >= 0 {
			s.snap.Items[i].Quantity = quantity
			s.touch()
			return nil
		}
		// The line exists remotely but not in memory: another device added
		// it after this store was opened.
		if err := s.reloadLocked(ctx); err != nil {
			s.logger.Warn("Cart reload after update failed", logging.Fields{
				"user_id": s.shopper.UserID,
				"error":   err.Error(),
			})
		}
		return nil
	}

	i := s.snap.Find(productID)
	if i < 0 {
		return nil
	}
	s.snap.Items[i].Quantity = quantity
	s.touch()
	return s.persistLocal(ctx, "update")
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shopper.Authenticated() {
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.remote.Clear(ctx, s.shopper.UserID)
		})
		s.record("clear", err)
		if err != nil {
			return err
		}
		s.snap.Items = []models.CartEntry{}
		s.touch()
		return nil
	}

	s.snap.Items = []models.CartEntry{}
	s.touch()
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.local.Delete(ctx, s.shopper.SessionID)
	})
	return s.afterLocalWrite("clear", err)
}

func (s *Store) removeLocked(ctx context.Context, productID string) error {
	if s.shopper.Authenticated() {
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.remote.RemoveItem(ctx, s.shopper.UserID, productID)
		})
		s.record("remove", err)
		if err != nil {
			return err
		}
		s.dropLine(productID)
		return nil
	}

	if !s.dropLine(productID) {
		return nil
	}
	return s.persistLocal(ctx, "remove")
}

func (s *Store) reloadLocked(ctx context.Context) error {
	var snap models.CartSnapshot
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		snap, err = s.remote.Load(ctx, s.shopper.UserID)
		return err
	})
	if err != nil {
		return err
	}
	s.snap = snap
	s.degraded = false
	s.loadErr = nil
	return nil
}

func (s *Store) applyAdd(entry models.CartEntry) {
	if i := s.snap.Find(entry.ProductID); i >= 0 {
		s.snap.Items[i].Quantity += entry.Quantity
	} else {
		s.snap.Items = append(s.snap.Items, entry)
	}
	s.touch()
}

func (s *Store) dropLine(productID string) bool {
	i := s.snap.Find(productID)
	if i < 0 {
		return false
	}
	s.snap.Items = append(s.snap.Items[:i], s.snap.Items[i+1:]...)
	s.touch()
	return true
}

func (s *Store) touch() {
	s.snap.UpdatedAt = s.now()
}

// persistLocal saves the snapshot. The in-memory change is kept even when
// the save fails; the error then wraps ErrUnsaved.
func (s *Store) persistLocal(ctx context.Context, op string) error {
	snap := s.snap.Clone()
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.local.Save(ctx, s.shopper.SessionID, snap)
	})
	return s.afterLocalWrite(op, err)
}

func (s *Store) afterLocalWrite(op string, err error) error {
	s.record(op, err)
	if err == nil {
		s.unsaved = false
		return nil
	}
	s.unsaved = true
	s.logger.Warn("Local cart not persisted", logging.Fields{
		"session_id": s.shopper.SessionID,
		"operation":  op,
		"error":      err.Error(),
	})
	return fmt.Errorf("%w: %w", ErrUnsaved, err)
}

func (s *Store) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if s.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func (s *Store) record(op string, err error) {
	metrics.CartOperations.WithLabelValues(op, s.Source(), metrics.Result(err)).Inc()
}
