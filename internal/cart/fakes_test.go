package cart_test

import (
	"context"
	"sync"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// memoryRemote is a RemoteBackend keyed by user id.
type memoryRemote struct {
	mu      sync.Mutex
	carts   map[string][]models.CartEntry
	failOps map[string]error
	loads   int
}

func newMemoryRemote() *memoryRemote {
	return &memoryRemote{carts: map[string][]models.CartEntry{}, failOps: map[string]error{}}
}

func (m *memoryRemote) fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOps[op] = err
}

func (m *memoryRemote) Load(_ context.Context, userID string) (models.CartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if err := m.failOps["load"]; err != nil {
		return models.CartSnapshot{}, err
	}
	items := append([]models.CartEntry{}, m.carts[userID]...)
	return models.CartSnapshot{Owner: userID, Items: items}, nil
}

func (m *memoryRemote) AddItem(_ context.Context, userID string, entry models.CartEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["add"]; err != nil {
		return err
	}
	for i, e := range m.carts[userID] {
		if e.ProductID == entry.ProductID {
			m.carts[userID][i].Quantity += entry.Quantity
			return nil
		}
	}
	m.carts[userID] = append(m.carts[userID], entry)
	return nil
}

func (m *memoryRemote) SetQuantity(_ context.Context, userID, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["update"]; err != nil {
		return err
	}
	for i, e := range m.carts[userID] {
		if e.ProductID == productID {
			m.carts[userID][i].Quantity = quantity
			return nil
		}
	}
	return errors.ErrItemNotFound
}

func (m *memoryRemote) RemoveItem(_ context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["remove"]; err != nil {
		return err
	}
	items := m.carts[userID]
	for i, e := range items {
		if e.ProductID == productID {
			m.carts[userID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memoryRemote) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["clear"]; err != nil {
		return err
	}
	delete(m.carts, userID)
	return nil
}

func (m *memoryRemote) quantities(userID string) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, e := range m.carts[userID] {
		out[e.ProductID] = e.Quantity
	}
	return out
}

// memoryLocal is a LocalBackend keyed by session id.
type memoryLocal struct {
	mu      sync.Mutex
	carts   map[string]models.CartSnapshot
	failOps map[string]error
}

func newMemoryLocal() *memoryLocal {
	return &memoryLocal{carts: map[string]models.CartSnapshot{}, failOps: map[string]error{}}
}

func (m *memoryLocal) fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOps[op] = err
}

func (m *memoryLocal) Load(_ context.Context, sessionID string) (models.CartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["load"]; err != nil {
		return models.CartSnapshot{}, err
	}
	snap, ok := m.carts[sessionID]
	if !ok {
		return models.CartSnapshot{Owner: sessionID, Items: []models.CartEntry{}}, nil
	}
	return snap.Clone(), nil
}

func (m *memoryLocal) Save(_ context.Context, sessionID string, snap models.CartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["save"]; err != nil {
		return err
	}
	m.carts[sessionID] = snap.Clone()
	return nil
}

func (m *memoryLocal) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOps["delete"]; err != nil {
		return err
	}
	delete(m.carts, sessionID)
	return nil
}

func (m *memoryLocal) stored(sessionID string) (models.CartSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.carts[sessionID]
	return snap, ok
}

// memoryCache is a SnapshotCache.
type memoryCache struct {
	mu    sync.Mutex
	snaps map[string]models.CartSnapshot
}

func newMemoryCache() *memoryCache {
	return &memoryCache{snaps: map[string]models.CartSnapshot{}}
}

func (m *memoryCache) Get(_ context.Context, userID string) (models.CartSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[userID]
	return snap.Clone(), ok, nil
}

func (m *memoryCache) Set(_ context.Context, userID string, snap models.CartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[userID] = snap.Clone()
	return nil
}

func (m *memoryCache) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, userID)
	return nil
}
