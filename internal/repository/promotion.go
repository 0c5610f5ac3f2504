package repository

import (
	"context"
	"database/sql"

	"github.com/tm-acme-shop/acme-shop-cart-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/models"
)

// PostgresPromotionRepository reads promotion_codes.
type PostgresPromotionRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

func NewPostgresPromotionRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresPromotionRepository {
	return &PostgresPromotionRepository{db: db, logger: logger.With("promotions")}
}

// GetByCode looks up code. Codes are stored upper-case.
func (r *PostgresPromotionRepository) GetByCode(ctx context.Context, code string) (*models.PromotionCode, error) {
	query := `
		SELECT code, discount_type, discount_value, starts_at, ends_at,
		       minimum_order_amount, usage_limit, usage_count, active
		FROM promotion_codes
		WHERE code = $1`

	var p models.PromotionCode
	var startsAt, endsAt sql.NullTime
	var usageLimit sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&p.Code,
		&p.DiscountType,
		&p.DiscountValue,
		&startsAt,
		&endsAt,
		&p.MinimumOrderAmount,
		&usageLimit,
		&p.UsageCount,
		&p.Active,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch promotion code", logging.Fields{
			"code":  code,
			"error": err.Error(),
		})
		return nil, err
	}

	if startsAt.Valid {
		p.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		p.EndsAt = &endsAt.Time
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		p.UsageLimit = &limit
	}

	return &p, nil
}
