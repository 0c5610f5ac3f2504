package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

const pqForeignKeyViolation = "23503"

// PostgresCartRepository stores authenticated carts as cart_items rows keyed
// by (user_id, product_id). Every mutation is a single statement so
// concurrent devices never lose an increment.
type PostgresCartRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
	now    func() time.Time
}

func NewPostgresCartRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresCartRepository {
	return &PostgresCartRepository{
		db:     db,
		logger: logger.With("cart-postgres"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Load materializes the cart joined with the catalog.
func (r *PostgresCartRepository) Load(ctx context.Context, userID string) (models.CartSnapshot, error) {
	snap := models.CartSnapshot{Owner: userID, Items: []models.CartEntry{}}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.product_id, p.name, p.price, p.sale_price, COALESCE(pi.url, ''),
		       ci.quantity, ci.created_at, ci.updated_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		LEFT JOIN product_images pi ON pi.product_id = p.id AND pi.is_primary
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.product_id`, userID)
	if err != nil {
		return snap, errors.Unavailable("load cart", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.CartEntry
		var sale decimal.NullDecimal
		var updatedAt time.Time
		if err := rows.Scan(&e.ProductID, &e.Name, &e.Price, &sale, &e.ImageURL,
			&e.Quantity, &e.AddedAt, &updatedAt); err != nil {
			return snap, errors.Unavailable("scan cart item", err)
		}
		if sale.Valid {
			e.SalePrice = &sale.Decimal
		}
		if updatedAt.After(snap.UpdatedAt) {
			snap.UpdatedAt = updatedAt
		}
		snap.Items = append(snap.Items, e)
	}
	if err := rows.Err(); err != nil {
		return snap, errors.Unavailable("load cart", err)
	}

	return snap, nil
}

// AddItem inserts the line or increments its quantity.
func (r *PostgresCartRepository) AddItem(ctx context.Context, userID string, entry models.CartEntry) error {
	now := r.now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		userID, entry.ProductID, entry.Quantity, now)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return errors.NewValidationError("product_id", "product does not exist")
		}
		r.logger.Error("Failed to add cart item", logging.Fields{
			"user_id":    userID,
			"product_id": entry.ProductID,
			"error":      err.Error(),
		})
		return errors.Unavailable("add cart item", err)
	}
	return nil
}

// SetQuantity overwrites the quantity. Missing lines yield ErrItemNotFound.
func (r *PostgresCartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $3, updated_at = $4 WHERE user_id = $1 AND product_id = $2`,
		userID, productID, quantity, r.now())
	if err != nil {
		return errors.Unavailable("update cart item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrItemNotFound
	}
	return nil
}

func (r *PostgresCartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID); err != nil {
		return errors.Unavailable("remove cart item", err)
	}
	return nil
}

func (r *PostgresCartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return errors.Unavailable("clear cart", err)
	}
	return nil
}
