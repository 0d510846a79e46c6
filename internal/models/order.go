package models

import "time"

// OrderStatus represents the status of an order
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusAccepted   OrderStatus = "accepted"
	StatusRejected   OrderStatus = "rejected"
	StatusPreparing  OrderStatus = "preparing"
	StatusReady      OrderStatus = "ready"
	StatusDelivering OrderStatus = "delivering"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusPreparing,
		StatusReady, StatusDelivering, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Address is a delivery address. The customer's address is copied onto the
// order at creation time, so later profile edits never touch placed orders.
type Address struct {
	Street      string  `json:"street"`
	HouseNumber string  `json:"house_number"`
	Staircase   *string `json:"staircase,omitempty"`
	Door        *string `json:"door,omitempty"`
	PostalCode  string  `json:"postal_code"`
	City        string  `json:"city"`
}

// Order represents a customer order
type Order struct {
	ID                       string      `json:"id" db:"id"`
	RestaurantID             string      `json:"restaurant_id" db:"restaurant_id"`
	CustomerID               string      `json:"customer_id" db:"customer_id"`
	DailyOrderNumber         int         `json:"daily_order_number" db:"daily_order_number"`
	OrderDate                time.Time   `json:"order_date" db:"order_date"`
	Status                   OrderStatus `json:"order_status" db:"order_status"`
	Subtotal                 float64     `json:"subtotal" db:"subtotal"`
	DiscountAmount           float64     `json:"discount_amount" db:"discount_amount"`
	FinalPrice               float64     `json:"final_price" db:"final_price"`
	VoucherID                *string     `json:"voucher_id,omitempty" db:"voucher_id"`
	VoucherCode              *string     `json:"voucher_code,omitempty" db:"voucher_code"`
	DeliveryAddress          Address     `json:"delivery_address"`
	EstimatedDeliveryMinutes int         `json:"estimated_delivery_minutes" db:"estimated_delivery_minutes"`
	CustomerNotes            *string     `json:"customer_notes,omitempty" db:"customer_notes"`
	RestaurantNotes          *string     `json:"restaurant_notes,omitempty" db:"restaurant_notes"`
	AcceptedAt               *time.Time  `json:"accepted_at,omitempty" db:"accepted_at"`
	RejectedAt               *time.Time  `json:"rejected_at,omitempty" db:"rejected_at"`
	PreparingStartedAt       *time.Time  `json:"preparing_started_at,omitempty" db:"preparing_started_at"`
	ReadyAt                  *time.Time  `json:"ready_at,omitempty" db:"ready_at"`
	DeliveringStartedAt      *time.Time  `json:"delivering_started_at,omitempty" db:"delivering_started_at"`
	DeliveredAt              *time.Time  `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt                time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time   `json:"updated_at" db:"updated_at"`
}

// OrderItem is a line item snapshot. Dish name and price are captured at
// order time and never change, even if the source dish is edited or deleted.
type OrderItem struct {
	ID        int     `json:"id,omitempty" db:"id"`
	OrderID   string  `json:"order_id,omitempty" db:"order_id"`
	DishID    *string `json:"dish_id,omitempty" db:"dish_id"`
	DishName  string  `json:"dish_name" db:"dish_name"`
	DishPrice float64 `json:"dish_price" db:"dish_price"`
	Quantity  int     `json:"quantity" db:"quantity"`
	Subtotal  float64 `json:"subtotal" db:"subtotal"`
}

// OrderStatusHistory is one entry of the append-only status audit log.
type OrderStatusHistory struct {
	ID        int         `json:"id,omitempty" db:"id"`
	OrderID   string      `json:"order_id,omitempty" db:"order_id"`
	Status    OrderStatus `json:"status" db:"status"`
	ChangedAt time.Time   `json:"changed_at" db:"changed_at"`
	Notes     *string     `json:"notes,omitempty" db:"notes"`
}

// OrderWithItems bundles an order with its line items.
type OrderWithItems struct {
	Order
	Items []OrderItem `json:"items"`
}

// OrderDetails is the full view returned to an authorized caller.
type OrderDetails struct {
	Order
	Items   []OrderItem          `json:"items"`
	History []OrderStatusHistory `json:"status_history"`
}

// CreateOrderRequest represents the request to create a new order
type CreateOrderRequest struct {
	RestaurantID  string            `json:"restaurant_id"`
	Items         []CreateOrderItem `json:"items"`
	VoucherCode   *string           `json:"voucher_code,omitempty"`
	CustomerNotes *string           `json:"customer_notes,omitempty"`
}

// CreateOrderItem is one requested line item.
type CreateOrderItem struct {
	DishID   string `json:"dish_id"`
	Quantity int    `json:"quantity"`
}

// UpdateOrderStatusRequest carries a requested status transition.
type UpdateOrderStatusRequest struct {
	NewStatus OrderStatus `json:"new_status"`
	Notes     *string     `json:"notes,omitempty"`
}

// RejectOrderRequest carries an optional rejection reason.
type RejectOrderRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// OrderFilters narrows list queries.
type OrderFilters struct {
	Status *OrderStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize clamps pagination to sane bounds.
func (f *OrderFilters) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
