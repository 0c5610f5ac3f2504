package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

const orderColumns = `
		id, order_number, user_id, status, items, shipping_address,
		payment_method, promotion_code, subtotal, discount, shipping, total,
		currency, notes, created_at, updated_at`

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		logger: logger.With("order-repository"),
	}
}

// GetByID retrieves an order by its unique identifier.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.logger.Debug("Fetching order by ID", logging.Fields{"order_id": id})

	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ErrNotFound
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch order", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return nil, errors.Unavailable("fetch order", err)
	}

	return order, nil
}

// Create deducts stock for every line, consumes one use of the promotion
// code and inserts the order. Nothing is written unless all three succeed.
func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.logger.Debug("Creating new order", logging.Fields{"user_id": order.UserID})

	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = generateOrderNumber(order.ID, now)
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Unavailable("begin order transaction", err)
	}
	defer tx.Rollback()

	for _, item := range order.Items {
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1 AND stock >= $2`,
			item.ProductID, item.Quantity, now)
		if err != nil {
			return errors.Unavailable("deduct stock", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w for %s", errors.ErrOutOfStock, item.ProductName)
		}
	}

	if order.PromotionCode != "" {
		res, err := tx.ExecContext(ctx,
			`UPDATE promotion_codes SET usage_count = usage_count + 1
			 WHERE code = $1 AND active AND (usage_limit IS NULL OR usage_count < usage_limit)`,
			order.PromotionCode)
		if err != nil {
			return errors.Unavailable("consume promotion code", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NewValidationError("promotion_code", "promotion code usage limit reached")
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.Status,
		itemsJSON,
		shippingJSON,
		order.PaymentMethod,
		nullString(order.PromotionCode),
		order.Subtotal,
		order.Discount,
		order.Shipping,
		order.Total,
		order.Currency,
		nullString(order.Notes),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create order", logging.Fields{
			"user_id": order.UserID,
			"error":   err.Error(),
		})
		return errors.Unavailable("insert order", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Unavailable("commit order", err)
	}

	r.logger.Info("Order created successfully", logging.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total":        order.Total.String(),
	})

	return nil
}

// UpdateStatus updates the status of an order.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	r.logger.Debug("Updating order status", logging.Fields{
		"order_id":   id,
		"new_status": req.Status,
	})

	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ErrNotFound
	}

	query := `
		UPDATE orders
		SET status = $2, notes = COALESCE($3, notes), updated_at = $4
		WHERE id = $1
		RETURNING ` + orderColumns

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id, req.Status, nullString(req.Notes), time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to update order status", logging.Fields{
			"order_id": id,
			"error":    err.Error(),
		})
		return nil, errors.Unavailable("update order status", err)
	}

	r.logger.Info("Order status updated", logging.Fields{
		"order_id":   id,
		"new_status": req.Status,
	})

	return order, nil
}

// Cancel cancels a pending or confirmed order and restocks its lines.
func (r *PostgresOrderRepository) Cancel(ctx context.Context, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ErrNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Unavailable("begin cancel transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	order, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		RETURNING `+orderColumns,
		id, models.OrderStatusCancelled, now))
	if err == sql.ErrNoRows {
		return nil, errors.NewValidationError("status", "order can no longer be cancelled")
	}
	if err != nil {
		return nil, errors.Unavailable("cancel order", err)
	}

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1`,
			item.ProductID, item.Quantity, now); err != nil {
			return nil, errors.Unavailable("restock product", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Unavailable("commit cancel", err)
	}

	r.logger.Info("Order cancelled", logging.Fields{"order_id": id})
	return order, nil
}

// ListByUser returns a page of the user's orders, newest first, and the
// total number of orders the user has.
func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error) {
	r.logger.Debug("Listing orders", logging.Fields{
		"user_id": userID,
		"limit":   limit,
		"offset":  offset,
	})

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, errors.Unavailable("count orders", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, errors.Unavailable("list orders", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Unavailable("list orders", err)
	}

	return orders, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var itemsJSON, shippingJSON []byte
	var promotionCode, notes sql.NullString

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.Status,
		&itemsJSON,
		&shippingJSON,
		&order.PaymentMethod,
		&promotionCode,
		&order.Subtotal,
		&order.Discount,
		&order.Shipping,
		&order.Total,
		&order.Currency,
		&notes,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}

	order.PromotionCode = promotionCode.String
	order.Notes = notes.String

	return &order, nil
}

func generateOrderNumber(id string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return "ORD-" + now.Format("20060102") + "-" + suffix
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
