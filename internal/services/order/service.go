// Package order implements the order lifecycle core: creation with pricing,
// voucher application and delivery estimation, the status state machine with
// its audit log, and the authorized read paths.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"food-market/internal/apperrors"
	"food-market/internal/logger"
	"food-market/internal/models"
	"food-market/internal/services/voucher"
)

// Caller roles as asserted by the auth gateway.
const (
	RoleCustomer = "customer"
	RoleOwner    = "restaurant_owner"
)

// Store is the order persistence surface.
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	GetStatusHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error)
	UpdateStatus(ctx context.Context, orderID string, from, to models.OrderStatus, notes *string) (*models.Order, error)
	SetRestaurantNotes(ctx context.Context, orderID string, notes *string) error
	ListCustomerOrders(ctx context.Context, customerID string, filters models.OrderFilters) ([]models.OrderWithRestaurant, error)
	ListRestaurantOrders(ctx context.Context, restaurantID string, filters models.OrderFilters) ([]models.OrderWithCustomer, error)
}

// Catalog is the read-only collaborator surface for restaurant, dish and
// customer lookups.
type Catalog interface {
	FindRestaurant(ctx context.Context, id string) (*models.Restaurant, error)
	FindDish(ctx context.Context, id string) (*models.Dish, error)
	FindCustomer(ctx context.Context, id string) (*models.Customer, error)
	FindRestaurantsByOwner(ctx context.Context, ownerID string) ([]models.Restaurant, error)
}

// VoucherEngine validates and redeems discount codes.
type VoucherEngine interface {
	Validate(ctx context.Context, code string, restaurantID *string, now time.Time) (voucher.Result, error)
	Redeem(ctx context.Context, voucherID string) error
}

// Publisher emits order events. Publishing is best effort; failures are
// logged by the service and never fail the request.
type Publisher interface {
	OrderCreated(ctx context.Context, msg *models.OrderCreatedMessage) error
	StatusChanged(ctx context.Context, msg *models.StatusChangedMessage) error
}

// Service is the order orchestrator, the sole entry point for the API layer.
type Service struct {
	store     Store
	catalog   Catalog
	vouchers  VoucherEngine
	publisher Publisher
	estimator *Estimator
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates the order orchestrator.
func NewService(store Store, catalog Catalog, vouchers VoucherEngine, publisher Publisher, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		vouchers:  vouchers,
		publisher: publisher,
		estimator: NewEstimator(),
		logger:    log,
		now:       time.Now,
	}
}

// CreateOrder validates, prices and persists a new order for the customer.
func (s *Service) CreateOrder(ctx context.Context, customerID string, req *models.CreateOrderRequest, requestID string) (*models.OrderWithItems, error) {
	// Structural validation first, everything batched.
	verr := validateItems(req.Items)
	if req.RestaurantID == "" {
		verr.Add("restaurant_id", "restaurant id is required")
	}
	if verr.HasViolations() {
		return nil, verr
	}

	restaurant, err := s.catalog.FindRestaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, apperrors.NotFound("restaurant", req.RestaurantID)
	}

	now := s.now()
	if !restaurant.IsOpenAt(now) {
		return nil, apperrors.Conflict("restaurant %s is currently closed", restaurant.Name)
	}

	dishes, err := s.lookupDishes(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	items, perr := priceItems(req.RestaurantID, req.Items, dishes)
	if perr != nil {
		return nil, perr
	}
	subtotal := subtotalOf(items)

	var (
		discount       float64
		appliedVoucher *models.Voucher
	)
	if req.VoucherCode != nil && *req.VoucherCode != "" {
		restaurantID := req.RestaurantID
		result, err := s.vouchers.Validate(ctx, *req.VoucherCode, &restaurantID, now)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			return nil, apperrors.Conflict("%s", result.Reason)
		}
		appliedVoucher = result.Voucher
		discount = voucher.CalculateDiscount(appliedVoucher, subtotal)
		if discount > subtotal {
			discount = subtotal
		}
	}
	finalPrice := finalPriceOf(subtotal, discount)

	customer, err := s.catalog.FindCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, apperrors.NotFound("customer", customerID)
	}

	uniqueDishes := make([]*models.Dish, 0, len(dishes))
	for _, dish := range dishes {
		uniqueDishes = append(uniqueDishes, dish)
	}

	order := &models.Order{
		ID:                       uuid.New().String(),
		RestaurantID:             req.RestaurantID,
		CustomerID:               customerID,
		OrderDate:                time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Status:                   models.StatusPending,
		Subtotal:                 subtotal,
		DiscountAmount:           discount,
		FinalPrice:               finalPrice,
		DeliveryAddress:          customer.DeliveryAddress,
		EstimatedDeliveryMinutes: s.estimator.Estimate(uniqueDishes),
		CustomerNotes:            req.CustomerNotes,
	}
	if appliedVoucher != nil {
		order.VoucherID = &appliedVoucher.ID
		order.VoucherCode = &appliedVoucher.Code
	}

	if err := s.store.CreateOrder(ctx, order, items); err != nil {
		return nil, err
	}

	// The order is committed. The voucher increment and the event are best
	// effort from here on: failures are logged, never returned.
	if appliedVoucher != nil {
		if err := s.vouchers.Redeem(ctx, appliedVoucher.ID); err != nil {
			s.logger.Error("voucher_redeem_failed",
				"Order committed but voucher usage count was not incremented",
				requestID, err, map[string]interface{}{
					"order_id":   order.ID,
					"voucher_id": appliedVoucher.ID,
				})
		}
	}
	if err := s.publisher.OrderCreated(ctx, models.NewOrderCreatedMessage(order, len(items))); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish order.created", requestID, err,
			map[string]interface{}{"order_id": order.ID})
	}

	storedItems, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithItems{Order: *order, Items: storedItems}, nil
}

func (s *Service) lookupDishes(ctx context.Context, items []models.CreateOrderItem) (map[string]*models.Dish, error) {
	dishes := make(map[string]*models.Dish, len(items))
	for _, item := range items {
		if _, seen := dishes[item.DishID]; seen {
			continue
		}
		dish, err := s.catalog.FindDish(ctx, item.DishID)
		if err != nil {
			return nil, err
		}
		dishes[item.DishID] = dish
	}
	return dishes, nil
}

// AcceptOrder moves a pending order to accepted on behalf of the restaurant
// owner.
func (s *Service) AcceptOrder(ctx context.Context, orderID, ownerID, requestID string) (*models.Order, error) {
	return s.resolvePendingDecision(ctx, orderID, ownerID, requestID, models.StatusAccepted, nil)
}

// RejectOrder moves a pending order to rejected, recording the optional
// reason as the restaurant's note.
func (s *Service) RejectOrder(ctx context.Context, orderID, ownerID, requestID string, reason *string) (*models.Order, error) {
	return s.resolvePendingDecision(ctx, orderID, ownerID, requestID, models.StatusRejected, reason)
}

func (s *Service) resolvePendingDecision(ctx context.Context, orderID, ownerID, requestID string, decision models.OrderStatus, reason *string) (*models.Order, error) {
	current, err := s.authorizeOwner(ctx, orderID, ownerID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusPending {
		return nil, apperrors.Conflict("order is not in pending status")
	}

	order, err := s.transition(ctx, current, decision, reason, requestID)
	if err != nil {
		return nil, err
	}

	if reason != nil && decision == models.StatusRejected {
		if err := s.store.SetRestaurantNotes(ctx, orderID, reason); err != nil {
			return nil, err
		}
		order.RestaurantNotes = reason
	}
	return order, nil
}

// UpdateOrderStatus applies a general status transition for the restaurant
// owner, enforcing the state machine.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, ownerID string, newStatus models.OrderStatus, notes *string, requestID string) (*models.Order, error) {
	if !newStatus.Valid() {
		verr := &apperrors.ValidationError{}
		verr.Add("new_status", fmt.Sprintf("unknown status %q", newStatus))
		return nil, verr
	}

	current, err := s.authorizeOwner(ctx, orderID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(current.Status, newStatus); err != nil {
		return nil, err
	}

	return s.transition(ctx, current, newStatus, notes, requestID)
}

// transition applies the store-level status update and publishes the event.
func (s *Service) transition(ctx context.Context, current *models.Order, to models.OrderStatus, notes *string, requestID string) (*models.Order, error) {
	order, err := s.store.UpdateStatus(ctx, current.ID, current.Status, to, notes)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, apperrors.Conflict("order status changed concurrently, retry")
		}
		return nil, err
	}

	if err := s.publisher.StatusChanged(ctx, models.NewStatusChangedMessage(order, current.Status)); err != nil {
		s.logger.Error("event_publish_failed", "Failed to publish order.status_changed", requestID, err,
			map[string]interface{}{"order_id": order.ID, "new_status": string(to)})
	}
	return order, nil
}

// authorizeOwner loads the order and verifies the caller owns its restaurant.
func (s *Service) authorizeOwner(ctx context.Context, orderID, ownerID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperrors.NotFound("order", orderID)
	}

	restaurant, err := s.catalog.FindRestaurant(ctx, order.RestaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant == nil || restaurant.OwnerID != ownerID {
		return nil, apperrors.Forbidden("you do not own this order's restaurant")
	}
	return order, nil
}

// GetOrderDetails returns the order with items and full history. A customer
// must own the order; an owner must own the order's restaurant, resolved via
// the owner's restaurant list rather than any denormalized owner id.
func (s *Service) GetOrderDetails(ctx context.Context, orderID, userID, role string) (*models.OrderDetails, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperrors.NotFound("order", orderID)
	}

	switch role {
	case RoleCustomer:
		if order.CustomerID != userID {
			return nil, apperrors.Forbidden("this order belongs to another customer")
		}
	case RoleOwner:
		restaurants, err := s.catalog.FindRestaurantsByOwner(ctx, userID)
		if err != nil {
			return nil, err
		}
		owned := false
		for _, restaurant := range restaurants {
			if restaurant.ID == order.RestaurantID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, apperrors.Forbidden("you do not own this order's restaurant")
		}
	default:
		return nil, apperrors.Forbidden("unknown role")
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.GetStatusHistory(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &models.OrderDetails{Order: *order, Items: items, History: history}, nil
}

// GetCustomerOrders lists the customer's own orders.
func (s *Service) GetCustomerOrders(ctx context.Context, customerID string, filters models.OrderFilters) ([]models.OrderWithRestaurant, error) {
	filters.Normalize()
	return s.store.ListCustomerOrders(ctx, customerID, filters)
}

// GetRestaurantOrders lists a restaurant's orders after verifying ownership.
func (s *Service) GetRestaurantOrders(ctx context.Context, restaurantID, ownerID string, filters models.OrderFilters) ([]models.OrderWithCustomer, error) {
	restaurant, err := s.catalog.FindRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, apperrors.NotFound("restaurant", restaurantID)
	}
	if restaurant.OwnerID != ownerID {
		return nil, apperrors.Forbidden("you do not own this restaurant")
	}

	filters.Normalize()
	return s.store.ListRestaurantOrders(ctx, restaurantID, filters)
}
