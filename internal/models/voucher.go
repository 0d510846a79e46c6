package models

import "time"

// DiscountType represents how a voucher's value is applied
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed_amount"
)

// Voucher is a discount code with a validity window, optional usage cap and
// optional restaurant scoping (nil RestaurantID means valid everywhere).
type Voucher struct {
	ID            string       `json:"id" db:"id"`
	Code          string       `json:"code" db:"code"`
	DiscountType  DiscountType `json:"discount_type" db:"discount_type"`
	DiscountValue float64      `json:"discount_value" db:"discount_value"`
	IsActive      bool         `json:"is_active" db:"is_active"`
	ValidFrom     time.Time    `json:"valid_from" db:"valid_from"`
	ValidUntil    time.Time    `json:"valid_until" db:"valid_until"`
	UsageLimit    *int         `json:"usage_limit,omitempty" db:"usage_limit"`
	UsageCount    int          `json:"usage_count" db:"usage_count"`
	RestaurantID  *string      `json:"restaurant_id,omitempty" db:"restaurant_id"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// ValidateVoucherRequest asks whether a code applies to an order.
type ValidateVoucherRequest struct {
	Code         string   `json:"code"`
	RestaurantID *string  `json:"restaurant_id,omitempty"`
	OrderAmount  *float64 `json:"order_amount,omitempty"`
}

// ValidateVoucherResponse reports the outcome of a voucher check.
type ValidateVoucherResponse struct {
	Valid          bool     `json:"valid"`
	DiscountAmount *float64 `json:"discount_amount,omitempty"`
	FinalPrice     *float64 `json:"final_price,omitempty"`
	Message        string   `json:"message,omitempty"`
}
