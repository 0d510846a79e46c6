package models

import (
	"fmt"
	"time"
)

// OrderCreatedMessage is published to the orders topic when an order is placed.
type OrderCreatedMessage struct {
	OrderID          string      `json:"order_id"`
	RestaurantID     string      `json:"restaurant_id"`
	DailyOrderNumber int         `json:"daily_order_number"`
	Status           OrderStatus `json:"status"`
	FinalPrice       float64     `json:"final_price"`
	ItemCount        int         `json:"item_count"`
	EstimatedMinutes int         `json:"estimated_delivery_minutes"`
	CreatedAt        time.Time   `json:"created_at"`
}

// StatusChangedMessage is published on every successful status transition.
type StatusChangedMessage struct {
	OrderID      string      `json:"order_id"`
	RestaurantID string      `json:"restaurant_id"`
	CustomerID   string      `json:"customer_id"`
	OldStatus    OrderStatus `json:"old_status"`
	NewStatus    OrderStatus `json:"new_status"`
	ChangedAt    time.Time   `json:"changed_at"`
}

// NewOrderCreatedMessage builds the creation event for an order.
func NewOrderCreatedMessage(order *Order, itemCount int) *OrderCreatedMessage {
	return &OrderCreatedMessage{
		OrderID:          order.ID,
		RestaurantID:     order.RestaurantID,
		DailyOrderNumber: order.DailyOrderNumber,
		Status:           order.Status,
		FinalPrice:       order.FinalPrice,
		ItemCount:        itemCount,
		EstimatedMinutes: order.EstimatedDeliveryMinutes,
		CreatedAt:        order.CreatedAt,
	}
}

// NewStatusChangedMessage builds the transition event for an order.
func NewStatusChangedMessage(order *Order, oldStatus OrderStatus) *StatusChangedMessage {
	return &StatusChangedMessage{
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		OldStatus:    oldStatus,
		NewStatus:    order.Status,
		ChangedAt:    time.Now().UTC(),
	}
}

// OrderCreatedRoutingKey generates the routing key for creation events.
func OrderCreatedRoutingKey(restaurantID string) string {
	return fmt.Sprintf("order.created.%s", restaurantID)
}

// StatusChangedRoutingKey generates the routing key for transition events.
func StatusChangedRoutingKey(status OrderStatus) string {
	return fmt.Sprintf("order.status_changed.%s", status)
}
