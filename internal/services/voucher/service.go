// Package voucher implements the discount-code engine: code validation
// against window, activation, usage cap and restaurant scoping, discount
// computation, and the atomic usage-count increment.
package voucher

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"food-market/internal/logger"
	"food-market/internal/models"
)

// Validation failure reasons surfaced to callers.
const (
	ReasonNotFound        = "voucher not found"
	ReasonInactive        = "voucher is not active"
	ReasonNotYetValid     = "voucher is not yet valid"
	ReasonExpired         = "voucher has expired"
	ReasonLimitReached    = "voucher usage limit reached"
	ReasonWrongRestaurant = "voucher is not valid for this restaurant"
	ReasonZeroTotal       = "final price is 0"
)

// Store is the persistence surface the engine needs.
type Store interface {
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	Redeem(ctx context.Context, voucherID string) error
}

// Result is the outcome of validating a code.
type Result struct {
	Valid   bool
	Voucher *models.Voucher
	Reason  string
}

// Service validates and redeems vouchers.
type Service struct {
	store  Store
	logger *logger.Logger
}

// NewService creates a voucher service.
func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, logger: log}
}

// Validate checks a code against its window, activation flag, usage cap and
// restaurant scoping. The validity window is inclusive at both bounds.
func (s *Service) Validate(ctx context.Context, code string, restaurantID *string, now time.Time) (Result, error) {
	voucher, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("look up voucher: %w", err)
	}
	if voucher == nil {
		return Result{Reason: ReasonNotFound}, nil
	}

	if !voucher.IsActive {
		return Result{Voucher: voucher, Reason: ReasonInactive}, nil
	}
	if now.Before(voucher.ValidFrom) {
		return Result{Voucher: voucher, Reason: ReasonNotYetValid}, nil
	}
	if now.After(voucher.ValidUntil) {
		return Result{Voucher: voucher, Reason: ReasonExpired}, nil
	}
	if voucher.UsageLimit != nil && voucher.UsageCount >= *voucher.UsageLimit {
		return Result{Voucher: voucher, Reason: ReasonLimitReached}, nil
	}
	if voucher.RestaurantID != nil {
		if restaurantID == nil || *voucher.RestaurantID != *restaurantID {
			return Result{Voucher: voucher, Reason: ReasonWrongRestaurant}, nil
		}
	}

	return Result{Valid: true, Voucher: voucher}, nil
}

// CalculateDiscount computes the discount a voucher grants on amount,
// rounded half-up to 2 decimals. A fixed-amount discount never exceeds the
// amount itself.
func CalculateDiscount(voucher *models.Voucher, amount float64) float64 {
	amt := decimal.NewFromFloat(amount)
	value := decimal.NewFromFloat(voucher.DiscountValue)

	switch voucher.DiscountType {
	case models.DiscountPercentage:
		discount := amt.Mul(value).Div(decimal.NewFromInt(100)).Round(2)
		result, _ := discount.Float64()
		return result
	case models.DiscountFixed:
		discount := decimal.Min(value, amt).Round(2)
		result, _ := discount.Float64()
		return result
	default:
		return 0
	}
}

// Redeem increments the voucher's usage count. The increment is conditional
// at the store so a near-exhausted voucher cannot overshoot its limit.
func (s *Service) Redeem(ctx context.Context, voucherID string) error {
	if err := s.store.Redeem(ctx, voucherID); err != nil {
		return fmt.Errorf("redeem voucher %s: %w", voucherID, err)
	}
	return nil
}
