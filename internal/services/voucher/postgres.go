package voucher

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"food-market/internal/database"
	"food-market/internal/models"
)

// ErrRedeemConditionFailed means the conditional increment matched no row:
// the voucher is gone or its usage limit was reached in the meantime.
var ErrRedeemConditionFailed = errors.New("usage limit reached or voucher missing")

// Repository reads and updates voucher rows in PostgreSQL.
type Repository struct {
	db *database.DB
}

// NewRepository creates a voucher repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const findByCodeSQL = `
	SELECT id, code, discount_type, discount_value, is_active,
		   valid_from, valid_until, usage_limit, usage_count, restaurant_id,
		   created_at, updated_at
	FROM vouchers WHERE LOWER(code) = LOWER($1)`

// FindByCode looks a voucher up case-insensitively, nil when absent.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.QueryRow(ctx, findByCodeSQL, code).Scan(
		&voucher.ID,
		&voucher.Code,
		&voucher.DiscountType,
		&voucher.DiscountValue,
		&voucher.IsActive,
		&voucher.ValidFrom,
		&voucher.ValidUntil,
		&voucher.UsageLimit,
		&voucher.UsageCount,
		&voucher.RestaurantID,
		&voucher.CreatedAt,
		&voucher.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find voucher by code: %w", err)
	}
	return &voucher, nil
}

const redeemSQL = `
	UPDATE vouchers
	SET usage_count = usage_count + 1, updated_at = NOW()
	WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`

// Redeem performs the atomic conditional usage-count increment. The WHERE
// clause guards the cap so two concurrent redemptions cannot overshoot it.
func (r *Repository) Redeem(ctx context.Context, voucherID string) error {
	tag, err := r.db.Pool.Exec(ctx, redeemSQL, voucherID)
	if err != nil {
		return fmt.Errorf("increment voucher usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRedeemConditionFailed
	}
	return nil
}
