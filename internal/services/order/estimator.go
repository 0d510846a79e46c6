package order

import (
	"math/rand"
	"time"

	"food-market/internal/models"
)

const (
	// deliveryFlatMinutes is the fixed courier leg added to every estimate.
	deliveryFlatMinutes = 10
	rushHourStart       = 17
	rushHourEnd         = 19
	rushMinDelay        = 5
	rushDelaySpread     = 6 // surcharge is rushMinDelay + [0, rushDelaySpread)
)

// Estimator derives the estimated delivery time for an order. The estimate
// is computed once at creation and never recalculated.
type Estimator struct {
	now       func() time.Time
	rushDelay func() int
}

// NewEstimator creates an estimator on the wall clock.
func NewEstimator() *Estimator {
	return &Estimator{
		now: time.Now,
		rushDelay: func() int {
			return rand.Intn(rushDelaySpread) + rushMinDelay
		},
	}
}

// Estimate returns the delivery estimate in minutes: the slowest dish's
// cooking time (dishes are prepared in parallel), a 5-10 minute surcharge
// during the evening rush, and the flat courier constant.
func (e *Estimator) Estimate(dishes []*models.Dish) int {
	var cooking int
	for _, dish := range dishes {
		if dish.CookingTimeMinutes > cooking {
			cooking = dish.CookingTimeMinutes
		}
	}

	minutes := cooking + deliveryFlatMinutes

	hour := e.now().Hour()
	if hour >= rushHourStart && hour < rushHourEnd {
		minutes += e.rushDelay()
	}

	return minutes
}
