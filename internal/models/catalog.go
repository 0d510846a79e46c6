package models

import "time"

// OpeningHours is one weekday's opening window, "HH:MM" 24-hour strings.
// The weekly table is indexed by time.Weekday (Sunday = 0).
type OpeningHours struct {
	Closed bool   `json:"closed"`
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
}

// Restaurant is the read view the order core needs: ownership for
// authorization and the weekly hours for the open-now check.
type Restaurant struct {
	ID           string          `json:"id" db:"id"`
	OwnerID      string          `json:"owner_id" db:"owner_id"`
	Name         string          `json:"name" db:"name"`
	OpeningHours [7]OpeningHours `json:"opening_hours"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// IsOpenAt reports whether the restaurant is open at t, matching the
// weekday's window by plain "HH:MM" string comparison.
func (r *Restaurant) IsOpenAt(t time.Time) bool {
	day := r.OpeningHours[int(t.Weekday())]
	if day.Closed || day.Open == "" || day.Close == "" {
		return false
	}
	now := t.Format("15:04")
	return day.Open <= now && now < day.Close
}

// Dish is the read view used for pricing and the delivery estimate.
type Dish struct {
	ID                 string  `json:"id" db:"id"`
	RestaurantID       string  `json:"restaurant_id" db:"restaurant_id"`
	Name               string  `json:"name" db:"name"`
	Price              float64 `json:"price" db:"price"`
	CookingTimeMinutes int     `json:"cooking_time_minutes" db:"cooking_time_minutes"`
}

// Customer is the read view used for the delivery-address snapshot.
type Customer struct {
	ID              string  `json:"id" db:"id"`
	Name            string  `json:"name" db:"name"`
	DeliveryAddress Address `json:"delivery_address"`
}

// OrderWithRestaurant is a customer-facing list row.
type OrderWithRestaurant struct {
	Order
	RestaurantName string `json:"restaurant_name"`
}

// OrderWithCustomer is a restaurant-facing list row.
type OrderWithCustomer struct {
	Order
	CustomerName string `json:"customer_name"`
}
