package repository

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

var (
	_ OrderRepository     = (*PostgresOrderRepository)(nil)
	_ OrderCache          = (*RedisOrderCache)(nil)
	_ ProductRepository   = (*PostgresProductRepository)(nil)
	_ PromotionRepository = (*PostgresPromotionRepository)(nil)
)

// OrderRepository persists orders. Create runs inventory deduction,
// promotion usage and the insert in one transaction.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error)
	UpdateStatus(ctx context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error)
	// Cancel moves a pending or confirmed order to cancelled and returns
	// its stock to the catalog.
	Cancel(ctx context.Context, id string) (*models.Order, error)
}

// OrderCache defines caching operations for orders.
type OrderCache interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
}

// ProductRepository reads the catalog.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error)
}

// PromotionRepository resolves promotion codes.
type PromotionRepository interface {
	GetByCode(ctx context.Context, code string) (*models.PromotionCode, error)
}
