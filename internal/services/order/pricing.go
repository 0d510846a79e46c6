package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"food-market/internal/apperrors"
	"food-market/internal/models"
)

const (
	minQuantity = 1
	maxQuantity = 99
)

// validateItems collects every structural violation in the requested line
// items instead of failing on the first one.
func validateItems(items []models.CreateOrderItem) *apperrors.ValidationError {
	verr := &apperrors.ValidationError{}

	if len(items) == 0 {
		verr.Add("items", "at least one item is required")
		return verr
	}

	for i, item := range items {
		if item.DishID == "" {
			verr.Add(fmt.Sprintf("items[%d].dish_id", i), "dish id is required")
		}
		if item.Quantity < minQuantity || item.Quantity > maxQuantity {
			verr.Add(fmt.Sprintf("items[%d].quantity", i),
				fmt.Sprintf("quantity must be between %d and %d", minQuantity, maxQuantity))
		}
	}

	return verr
}

// priceItems resolves each requested dish, enforces that every dish belongs
// to the stated restaurant, and builds the immutable line-item snapshots.
// Dish lookup failures are batched like structural violations, so the caller
// sees every mismatch at once.
func priceItems(restaurantID string, items []models.CreateOrderItem, dishes map[string]*models.Dish) ([]models.OrderItem, *apperrors.ValidationError) {
	verr := &apperrors.ValidationError{}
	lineItems := make([]models.OrderItem, 0, len(items))

	for i, item := range items {
		dish, ok := dishes[item.DishID]
		if !ok || dish == nil {
			verr.Add(fmt.Sprintf("items[%d].dish_id", i), fmt.Sprintf("dish %s not found", item.DishID))
			continue
		}
		if dish.RestaurantID != restaurantID {
			verr.Add(fmt.Sprintf("items[%d].dish_id", i),
				fmt.Sprintf("dish %s does not belong to restaurant %s", item.DishID, restaurantID))
			continue
		}

		lineSubtotal, _ := decimal.NewFromFloat(dish.Price).
			Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2).Float64()

		dishID := dish.ID
		lineItems = append(lineItems, models.OrderItem{
			DishID:    &dishID,
			DishName:  dish.Name,
			DishPrice: dish.Price,
			Quantity:  item.Quantity,
			Subtotal:  lineSubtotal,
		})
	}

	if verr.HasViolations() {
		return nil, verr
	}
	return lineItems, nil
}

// subtotalOf sums line subtotals, rounded half-up to 2 decimals.
func subtotalOf(items []models.OrderItem) float64 {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(decimal.NewFromFloat(item.Subtotal))
	}
	result, _ := sum.Round(2).Float64()
	return result
}

// finalPriceOf computes subtotal - discount, rounded half-up to 2 decimals.
func finalPriceOf(subtotal, discount float64) float64 {
	result, _ := decimal.NewFromFloat(subtotal).
		Sub(decimal.NewFromFloat(discount)).Round(2).Float64()
	return result
}
