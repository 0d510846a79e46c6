// Package catalog provides read-only access to restaurants, dishes and
// customers. The order core only ever looks these up; their CRUD surfaces
// live elsewhere.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"food-market/internal/database"
	"food-market/internal/models"
)

// Repository reads catalog records from PostgreSQL.
type Repository struct {
	db *database.DB
}

// NewRepository creates a catalog repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const findRestaurantSQL = `
	SELECT id, owner_id, name, opening_hours, created_at
	FROM restaurants WHERE id = $1`

// FindRestaurant returns the restaurant or nil when it does not exist.
func (r *Repository) FindRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	var (
		restaurant models.Restaurant
		hoursJSON  []byte
	)
	err := r.db.QueryRow(ctx, findRestaurantSQL, id).Scan(
		&restaurant.ID,
		&restaurant.OwnerID,
		&restaurant.Name,
		&hoursJSON,
		&restaurant.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find restaurant: %w", err)
	}

	var hours []models.OpeningHours
	if err := json.Unmarshal(hoursJSON, &hours); err != nil {
		return nil, fmt.Errorf("decode opening hours: %w", err)
	}
	for i := 0; i < len(hours) && i < 7; i++ {
		restaurant.OpeningHours[i] = hours[i]
	}

	return &restaurant, nil
}

const findRestaurantsByOwnerSQL = `
	SELECT id, owner_id, name, opening_hours, created_at
	FROM restaurants WHERE owner_id = $1
	ORDER BY created_at ASC`

// FindRestaurantsByOwner returns every restaurant the owner operates.
func (r *Repository) FindRestaurantsByOwner(ctx context.Context, ownerID string) ([]models.Restaurant, error) {
	rows, err := r.db.Query(ctx, findRestaurantsByOwnerSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("find restaurants by owner: %w", err)
	}
	defer rows.Close()

	var restaurants []models.Restaurant
	for rows.Next() {
		var (
			restaurant models.Restaurant
			hoursJSON  []byte
		)
		err := rows.Scan(
			&restaurant.ID,
			&restaurant.OwnerID,
			&restaurant.Name,
			&hoursJSON,
			&restaurant.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan restaurant row: %w", err)
		}

		var hours []models.OpeningHours
		if err := json.Unmarshal(hoursJSON, &hours); err != nil {
			return nil, fmt.Errorf("decode opening hours: %w", err)
		}
		for i := 0; i < len(hours) && i < 7; i++ {
			restaurant.OpeningHours[i] = hours[i]
		}

		restaurants = append(restaurants, restaurant)
	}

	return restaurants, rows.Err()
}

const findDishSQL = `
	SELECT id, restaurant_id, name, price, cooking_time_minutes
	FROM dishes WHERE id = $1`

// FindDish returns the dish or nil when it does not exist.
func (r *Repository) FindDish(ctx context.Context, id string) (*models.Dish, error) {
	var dish models.Dish
	err := r.db.QueryRow(ctx, findDishSQL, id).Scan(
		&dish.ID,
		&dish.RestaurantID,
		&dish.Name,
		&dish.Price,
		&dish.CookingTimeMinutes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find dish: %w", err)
	}
	return &dish, nil
}

const findCustomerSQL = `
	SELECT id, name, street, house_number, staircase, door, postal_code, city
	FROM customers WHERE id = $1`

// FindCustomer returns the customer or nil when it does not exist.
func (r *Repository) FindCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.QueryRow(ctx, findCustomerSQL, id).Scan(
		&customer.ID,
		&customer.Name,
		&customer.DeliveryAddress.Street,
		&customer.DeliveryAddress.HouseNumber,
		&customer.DeliveryAddress.Staircase,
		&customer.DeliveryAddress.Door,
		&customer.DeliveryAddress.PostalCode,
		&customer.DeliveryAddress.City,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find customer: %w", err)
	}
	return &customer, nil
}
