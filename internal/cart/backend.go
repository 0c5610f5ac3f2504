// Package cart holds the shopper's selected items. Signed-in shoppers use a
// remote per-user backend; anonymous shoppers use a session-scoped local
// backend. Writes to the remote backend are pessimistic and writes to the
// local backend are optimistic.
package cart

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// ErrUnsaved marks a local write that was applied in memory but could not
// be persisted.
var ErrUnsaved = errors.New("cart change not saved")

// RemoteBackend is the per-user cart store. Implementations make every
// mutation a single atomic operation.
type RemoteBackend interface {
	Load(ctx context.Context, userID string) (models.CartSnapshot, error)
	// AddItem inserts entry or increments the existing line by
	// entry.Quantity.
	AddItem(ctx context.Context, userID string, entry models.CartEntry) error
	// SetQuantity returns errors.ErrItemNotFound when the line is absent.
	SetQuantity(ctx context.Context, userID, productID string, quantity int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// LocalBackend stores a whole snapshot per device session.
type LocalBackend interface {
	// Load returns an empty snapshot when nothing is stored.
	Load(ctx context.Context, sessionID string) (models.CartSnapshot, error)
	Save(ctx context.Context, sessionID string, snap models.CartSnapshot) error
	Delete(ctx context.Context, sessionID string) error
}

// SnapshotCache caches materialized remote carts.
type SnapshotCache interface {
	Get(ctx context.Context, userID string) (models.CartSnapshot, bool, error)
	Set(ctx context.Context, userID string, snap models.CartSnapshot) error
	Delete(ctx context.Context, userID string) error
}

// Shopper identifies whose cart is being used. UserID is set for signed-in
// shoppers; SessionID identifies the device session.
type Shopper struct {
	UserID    string
	SessionID string
}

// Authenticated reports whether the shopper is signed in.
func (s Shopper) Authenticated() bool {
	return s.UserID != ""
}

// Key identifies the shopper for locking and checkout state.
func (s Shopper) Key() string {
	if s.Authenticated() {
		return "user:" + s.UserID
	}
	return "session:" + s.SessionID
}

const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)
