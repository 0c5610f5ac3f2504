package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

const productQuery = `
		SELECT p.id, p.name, p.price, p.sale_price, COALESCE(pi.url, ''), p.stock
		FROM products p
		LEFT JOIN product_images pi ON pi.product_id = p.id AND pi.is_primary`

// PostgresProductRepository reads products with their primary image.
type PostgresProductRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

func NewPostgresProductRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresProductRepository {
	return &PostgresProductRepository{db: db, logger: logger.With("catalog")}
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, productQuery+` WHERE p.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch product", logging.Fields{
			"product_id": id,
			"error":      err.Error(),
		})
		return nil, errors.Unavailable("fetch product", err)
	}
	return p, nil
}

// GetByIDs returns the products found, keyed by id. Unknown ids are absent
// from the map.
func (r *PostgresProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, productQuery+` WHERE p.id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, errors.Unavailable("fetch products", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Unavailable("scan product", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable("fetch products", err)
	}
	return out, nil
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var sale decimal.NullDecimal
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &sale, &p.ImageURL, &p.Stock); err != nil {
		return nil, err
	}
	if sale.Valid {
		p.SalePrice = &sale.Decimal
	}
	return &p, nil
}
