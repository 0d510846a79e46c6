package voucher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"food-market/internal/logger"
	"food-market/internal/models"
)

type fakeStore struct {
	vouchers map[string]*models.Voucher
	redeemed []string
}

func (f *fakeStore) FindByCode(_ context.Context, code string) (*models.Voucher, error) {
	return f.vouchers[code], nil
}

func (f *fakeStore) Redeem(_ context.Context, voucherID string) error {
	f.redeemed = append(f.redeemed, voucherID)
	return nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newTestService(vouchers ...*models.Voucher) (*Service, *fakeStore) {
	store := &fakeStore{vouchers: map[string]*models.Voucher{}}
	for _, v := range vouchers {
		store.vouchers[v.Code] = v
	}
	return NewService(store, logger.New("test")), store
}

func baseVoucher() *models.Voucher {
	return &models.Voucher{
		ID:            "v-1",
		Code:          "SAVE10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 10,
		IsActive:      true,
		ValidFrom:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:    time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		mutate     func(*models.Voucher)
		code       string
		restaurant *string
		at         time.Time
		wantValid  bool
		wantReason string
	}{
		{
			name:      "valid voucher",
			code:      "SAVE10",
			at:        now,
			wantValid: true,
		},
		{
			name:       "unknown code",
			code:       "NOPE",
			at:         now,
			wantReason: ReasonNotFound,
		},
		{
			name:       "inactive",
			mutate:     func(v *models.Voucher) { v.IsActive = false },
			code:       "SAVE10",
			at:         now,
			wantReason: ReasonInactive,
		},
		{
			name:       "before window",
			code:       "SAVE10",
			at:         time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
			wantReason: ReasonNotYetValid,
		},
		{
			name:       "after window",
			code:       "SAVE10",
			at:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			wantReason: ReasonExpired,
		},
		{
			name:      "window start is inclusive",
			code:      "SAVE10",
			at:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			wantValid: true,
		},
		{
			name:      "window end is inclusive",
			code:      "SAVE10",
			at:        time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
			wantValid: true,
		},
		{
			name: "usage limit reached regardless of window",
			mutate: func(v *models.Voucher) {
				v.UsageLimit = intPtr(5)
				v.UsageCount = 5
			},
			code:       "SAVE10",
			at:         now,
			wantReason: ReasonLimitReached,
		},
		{
			name: "one use left still valid",
			mutate: func(v *models.Voucher) {
				v.UsageLimit = intPtr(5)
				v.UsageCount = 4
			},
			code:      "SAVE10",
			at:        now,
			wantValid: true,
		},
		{
			name:       "scoped voucher on wrong restaurant",
			mutate:     func(v *models.Voucher) { v.RestaurantID = strPtr("rest-1") },
			code:       "SAVE10",
			restaurant: strPtr("rest-2"),
			at:         now,
			wantReason: ReasonWrongRestaurant,
		},
		{
			name:       "scoped voucher on its restaurant",
			mutate:     func(v *models.Voucher) { v.RestaurantID = strPtr("rest-1") },
			code:       "SAVE10",
			restaurant: strPtr("rest-1"),
			at:         now,
			wantValid:  true,
		},
		{
			name:       "global voucher valid anywhere",
			code:       "SAVE10",
			restaurant: strPtr("rest-2"),
			at:         now,
			wantValid:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := baseVoucher()
			if tt.mutate != nil {
				tt.mutate(v)
			}
			service, _ := newTestService(v)

			result, err := service.Validate(context.Background(), tt.code, tt.restaurant, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid)
			if !tt.wantValid {
				assert.Equal(t, tt.wantReason, result.Reason)
			}
		})
	}
}

func TestCalculateDiscount_Percentage(t *testing.T) {
	v := baseVoucher() // 10%
	assert.Equal(t, 2.55, CalculateDiscount(v, 25.50))
	assert.Equal(t, 0.10, CalculateDiscount(v, 1.00))
}

func TestCalculateDiscount_PercentageRoundsHalfUp(t *testing.T) {
	v := baseVoucher()
	v.DiscountValue = 15
	// 15% of 8.30 = 1.245, rounds up to 1.25.
	assert.Equal(t, 1.25, CalculateDiscount(v, 8.30))
}

func TestCalculateDiscount_FixedAmountIsCapped(t *testing.T) {
	v := baseVoucher()
	v.DiscountType = models.DiscountFixed
	v.DiscountValue = 5

	assert.Equal(t, 3.00, CalculateDiscount(v, 3.00))
	assert.Equal(t, 5.00, CalculateDiscount(v, 20.00))
}

func TestRedeem_DelegatesToStore(t *testing.T) {
	service, store := newTestService()
	require.NoError(t, service.Redeem(context.Background(), "v-1"))
	assert.Equal(t, []string{"v-1"}, store.redeemed)
}
