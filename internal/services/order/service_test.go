package order

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"food-market/internal/apperrors"
	"food-market/internal/logger"
	"food-market/internal/models"
	"food-market/internal/services/voucher"
)

type fakeOrderStore struct {
	orders    map[string]*models.Order
	items     map[string][]models.OrderItem
	history   map[string][]models.OrderStatusHistory
	nextDaily map[string]int
	created   int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders:    map[string]*models.Order{},
		items:     map[string][]models.OrderItem{},
		history:   map[string][]models.OrderStatusHistory{},
		nextDaily: map[string]int{},
	}
}

func (f *fakeOrderStore) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	key := fmt.Sprintf("%s/%s", order.RestaurantID, order.OrderDate.Format("2006-01-02"))
	f.nextDaily[key]++
	order.DailyOrderNumber = f.nextDaily[key]
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt

	stored := *order
	f.orders[order.ID] = &stored
	f.items[order.ID] = items
	f.history[order.ID] = append(f.history[order.ID], models.OrderStatusHistory{
		OrderID: order.ID, Status: models.StatusPending, ChangedAt: order.CreatedAt,
	})
	f.created++
	return nil
}

func (f *fakeOrderStore) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) GetOrderItems(_ context.Context, orderID string) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeOrderStore) GetStatusHistory(_ context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	return f.history[orderID], nil
}

func (f *fakeOrderStore) UpdateStatus(_ context.Context, orderID string, from, to models.OrderStatus, notes *string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok || order.Status != from {
		return nil, ErrStatusConflict
	}
	order.Status = to
	now := time.Now().UTC()
	order.UpdatedAt = now
	switch to {
	case models.StatusAccepted:
		order.AcceptedAt = &now
	case models.StatusRejected:
		order.RejectedAt = &now
	case models.StatusPreparing:
		order.PreparingStartedAt = &now
	case models.StatusReady:
		order.ReadyAt = &now
	case models.StatusDelivering:
		order.DeliveringStartedAt = &now
	case models.StatusDelivered:
		order.DeliveredAt = &now
	}
	f.history[orderID] = append(f.history[orderID], models.OrderStatusHistory{
		OrderID: orderID, Status: to, ChangedAt: now, Notes: notes,
	})
	copied := *order
	return &copied, nil
}

func (f *fakeOrderStore) SetRestaurantNotes(_ context.Context, orderID string, notes *string) error {
	if order, ok := f.orders[orderID]; ok {
		order.RestaurantNotes = notes
	}
	return nil
}

func (f *fakeOrderStore) ListCustomerOrders(_ context.Context, customerID string, _ models.OrderFilters) ([]models.OrderWithRestaurant, error) {
	var out []models.OrderWithRestaurant
	for _, order := range f.orders {
		if order.CustomerID == customerID {
			out = append(out, models.OrderWithRestaurant{Order: *order})
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ListRestaurantOrders(_ context.Context, restaurantID string, _ models.OrderFilters) ([]models.OrderWithCustomer, error) {
	var out []models.OrderWithCustomer
	for _, order := range f.orders {
		if order.RestaurantID == restaurantID {
			out = append(out, models.OrderWithCustomer{Order: *order})
		}
	}
	return out, nil
}

type fakeCatalog struct {
	restaurants map[string]*models.Restaurant
	dishes      map[string]*models.Dish
	customers   map[string]*models.Customer
}

func (f *fakeCatalog) FindRestaurant(_ context.Context, id string) (*models.Restaurant, error) {
	return f.restaurants[id], nil
}

func (f *fakeCatalog) FindDish(_ context.Context, id string) (*models.Dish, error) {
	return f.dishes[id], nil
}

func (f *fakeCatalog) FindCustomer(_ context.Context, id string) (*models.Customer, error) {
	return f.customers[id], nil
}

func (f *fakeCatalog) FindRestaurantsByOwner(_ context.Context, ownerID string) ([]models.Restaurant, error) {
	var out []models.Restaurant
	for _, restaurant := range f.restaurants {
		if restaurant.OwnerID == ownerID {
			out = append(out, *restaurant)
		}
	}
	return out, nil
}

type fakeVoucherEngine struct {
	result    voucher.Result
	redeemErr error
	redeemed  []string
}

func (f *fakeVoucherEngine) Validate(_ context.Context, _ string, _ *string, _ time.Time) (voucher.Result, error) {
	return f.result, nil
}

func (f *fakeVoucherEngine) Redeem(_ context.Context, voucherID string) error {
	if f.redeemErr != nil {
		return f.redeemErr
	}
	f.redeemed = append(f.redeemed, voucherID)
	return nil
}

type fakePublisher struct {
	created []*models.OrderCreatedMessage
	changed []*models.StatusChangedMessage
}

func (f *fakePublisher) OrderCreated(_ context.Context, msg *models.OrderCreatedMessage) error {
	f.created = append(f.created, msg)
	return nil
}

func (f *fakePublisher) StatusChanged(_ context.Context, msg *models.StatusChangedMessage) error {
	f.changed = append(f.changed, msg)
	return nil
}

func alwaysOpen() [7]models.OpeningHours {
	var hours [7]models.OpeningHours
	for i := range hours {
		hours[i] = models.OpeningHours{Open: "00:00", Close: "23:59"}
	}
	return hours
}

func alwaysClosed() [7]models.OpeningHours {
	var hours [7]models.OpeningHours
	for i := range hours {
		hours[i] = models.OpeningHours{Closed: true}
	}
	return hours
}

type fixture struct {
	service   *Service
	store     *fakeOrderStore
	catalog   *fakeCatalog
	vouchers  *fakeVoucherEngine
	publisher *fakePublisher
}

func newFixture() *fixture {
	store := newFakeOrderStore()
	cat := &fakeCatalog{
		restaurants: map[string]*models.Restaurant{
			"rest-1": {ID: "rest-1", OwnerID: "owner-1", Name: "Trattoria", OpeningHours: alwaysOpen()},
		},
		dishes: map[string]*models.Dish{
			"dish-a": {ID: "dish-a", RestaurantID: "rest-1", Name: "Margherita", Price: 8.00, CookingTimeMinutes: 15},
			"dish-b": {ID: "dish-b", RestaurantID: "rest-1", Name: "Tiramisu", Price: 12.00, CookingTimeMinutes: 20},
			"dish-x": {ID: "dish-x", RestaurantID: "rest-2", Name: "Foreign", Price: 5.00, CookingTimeMinutes: 10},
		},
		customers: map[string]*models.Customer{
			"cust-1": {ID: "cust-1", Name: "Anna", DeliveryAddress: models.Address{
				Street: "Main St", HouseNumber: "4", PostalCode: "1010", City: "Vienna",
			}},
		},
	}
	vouchers := &fakeVoucherEngine{}
	publisher := &fakePublisher{}

	service := NewService(store, cat, vouchers, publisher, logger.New("test"))
	// Deterministic clock outside rush hour.
	service.now = func() time.Time { return time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC) }
	service.estimator = &Estimator{
		now:       service.now,
		rushDelay: func() int { return 0 },
	}

	return &fixture{service: service, store: store, catalog: cat, vouchers: vouchers, publisher: publisher}
}

func validRequest() *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		RestaurantID: "rest-1",
		Items: []models.CreateOrderItem{
			{DishID: "dish-a", Quantity: 2},
			{DishID: "dish-b", Quantity: 1},
		},
	}
}

func TestCreateOrder_HappyPath(t *testing.T) {
	f := newFixture()

	result, err := f.service.CreateOrder(context.Background(), "cust-1", validRequest(), "req-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, result.Status)
	assert.Equal(t, 28.00, result.Subtotal)
	assert.Equal(t, 0.00, result.DiscountAmount)
	assert.Equal(t, 28.00, result.FinalPrice)
	assert.Equal(t, 1, result.DailyOrderNumber)
	// Bottleneck dish cooks 20 minutes, plus the flat courier 10.
	assert.Equal(t, 30, result.EstimatedDeliveryMinutes)
	// Address snapshot from the customer profile.
	assert.Equal(t, "Main St", result.DeliveryAddress.Street)
	assert.Equal(t, "Vienna", result.DeliveryAddress.City)

	require.Len(t, result.Items, 2)
	assert.Equal(t, "Margherita", result.Items[0].DishName)

	// Initial pending history row written as part of creation.
	history := f.store.history[result.ID]
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusPending, history[0].Status)

	require.Len(t, f.publisher.created, 1)
	assert.Equal(t, result.ID, f.publisher.created[0].OrderID)
	assert.Empty(t, f.vouchers.redeemed)
}

func TestCreateOrder_DailyNumbersIncrement(t *testing.T) {
	f := newFixture()

	for want := 1; want <= 3; want++ {
		result, err := f.service.CreateOrder(context.Background(), "cust-1", validRequest(), "req")
		require.NoError(t, err)
		assert.Equal(t, want, result.DailyOrderNumber)
	}
}

func TestCreateOrder_WithVoucher(t *testing.T) {
	f := newFixture()
	f.vouchers.result = voucher.Result{
		Valid: true,
		Voucher: &models.Voucher{
			ID: "v-1", Code: "SAVE10",
			DiscountType: models.DiscountPercentage, DiscountValue: 10,
		},
	}

	req := validRequest()
	code := "SAVE10"
	req.VoucherCode = &code

	result, err := f.service.CreateOrder(context.Background(), "cust-1", req, "req-1")
	require.NoError(t, err)

	assert.Equal(t, 28.00, result.Subtotal)
	assert.Equal(t, 2.80, result.DiscountAmount)
	assert.Equal(t, 25.20, result.FinalPrice)
	require.NotNil(t, result.VoucherCode)
	assert.Equal(t, "SAVE10", *result.VoucherCode)

	// Redeemed exactly once, after the order was persisted.
	assert.Equal(t, []string{"v-1"}, f.vouchers.redeemed)
}

func TestCreateOrder_RedeemFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture()
	f.vouchers.result = voucher.Result{
		Valid: true,
		Voucher: &models.Voucher{
			ID: "v-1", Code: "SAVE10",
			DiscountType: models.DiscountPercentage, DiscountValue: 10,
		},
	}
	f.vouchers.redeemErr = errors.New("voucher usage limit reached")

	req := validRequest()
	code := "SAVE10"
	req.VoucherCode = &code

	// The order is already committed when the usage increment fails, so the
	// caller still gets the order back.
	result, err := f.service.CreateOrder(context.Background(), "cust-1", req, "req-1")
	require.NoError(t, err)

	assert.Equal(t, 25.20, result.FinalPrice)
	assert.Equal(t, 1, f.store.created)
	assert.NotNil(t, f.store.orders[result.ID])
	assert.Empty(t, f.vouchers.redeemed)
}

func TestCreateOrder_DiscountClampedToSubtotal(t *testing.T) {
	f := newFixture()
	f.vouchers.result = voucher.Result{
		Valid: true,
		Voucher: &models.Voucher{
			ID: "v-big", Code: "BIG150",
			DiscountType: models.DiscountPercentage, DiscountValue: 150,
		},
	}

	req := validRequest()
	code := "BIG150"
	req.VoucherCode = &code

	result, err := f.service.CreateOrder(context.Background(), "cust-1", req, "req-1")
	require.NoError(t, err)

	assert.Equal(t, 28.00, result.Subtotal)
	assert.Equal(t, 28.00, result.DiscountAmount)
	assert.Equal(t, 0.00, result.FinalPrice)
}

func TestCreateOrder_InvalidVoucherIsConflict(t *testing.T) {
	f := newFixture()
	f.vouchers.result = voucher.Result{Reason: voucher.ReasonExpired}

	req := validRequest()
	code := "OLD"
	req.VoucherCode = &code

	_, err := f.service.CreateOrder(context.Background(), "cust-1", req, "req-1")

	var conflict *apperrors.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, voucher.ReasonExpired, conflict.Error())
	assert.Zero(t, f.store.created)
}

func TestCreateOrder_ClosedRestaurantIsConflict(t *testing.T) {
	f := newFixture()
	f.catalog.restaurants["rest-1"].OpeningHours = alwaysClosed()

	_, err := f.service.CreateOrder(context.Background(), "cust-1", validRequest(), "req-1")

	var conflict *apperrors.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Contains(t, conflict.Error(), "closed")
	assert.Zero(t, f.store.created)
}

func TestCreateOrder_ForeignDishFailsValidation(t *testing.T) {
	f := newFixture()

	req := validRequest()
	req.Items = append(req.Items, models.CreateOrderItem{DishID: "dish-x", Quantity: 1})

	_, err := f.service.CreateOrder(context.Background(), "cust-1", req, "req-1")

	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Violations, 1)
	assert.Contains(t, verr.Violations[0].Message, "does not belong to restaurant")
	assert.Zero(t, f.store.created, "no order row may be persisted on validation failure")
}

func TestCreateOrder_BatchesStructuralViolations(t *testing.T) {
	f := newFixture()

	req := &models.CreateOrderRequest{
		Items: []models.CreateOrderItem{
			{DishID: "", Quantity: 0},
		},
	}

	_, err := f.service.CreateOrder(context.Background(), "cust-1", req, "req-1")

	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 3) // dish id, quantity, restaurant id
}

func TestCreateOrder_UnknownRestaurant(t *testing.T) {
	f := newFixture()

	req := validRequest()
	req.RestaurantID = "rest-ghost"

	_, err := f.service.CreateOrder(context.Background(), "cust-1", req, "req-1")

	var notFound *apperrors.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func placeOrder(t *testing.T, f *fixture) *models.OrderWithItems {
	t.Helper()
	result, err := f.service.CreateOrder(context.Background(), "cust-1", validRequest(), "req")
	require.NoError(t, err)
	return result
}

func TestAcceptOrder(t *testing.T) {
	f := newFixture()
	placed := placeOrder(t, f)

	order, err := f.service.AcceptOrder(context.Background(), placed.ID, "owner-1", "req")
	require.NoError(t, err)

	assert.Equal(t, models.StatusAccepted, order.Status)
	assert.NotNil(t, order.AcceptedAt)

	history := f.store.history[placed.ID]
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusAccepted, history[1].Status)

	require.Len(t, f.publisher.changed, 1)
	assert.Equal(t, models.StatusPending, f.publisher.changed[0].OldStatus)
	assert.Equal(t, models.StatusAccepted, f.publisher.changed[0].NewStatus)
}

func TestAcceptOrder_AlreadyAcceptedIsConflict(t *testing.T) {
	f := newFixture()
	placed := placeOrder(t, f)

	_, err := f.service.AcceptOrder(context.Background(), placed.ID, "owner-1", "req")
	require.NoError(t, err)

	_, err = f.service.AcceptOrder(context.Background(), placed.ID, "owner-1", "req")
	var conflict *apperrors.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Contains(t, conflict.Error(), "not in pending status")

	// Status and history untouched by the failed attempt.
	assert.Equal(t, models.StatusAccepted, f.store.orders[placed.ID].Status)
	assert.Len(t, f.store.history[placed.ID], 2)
}

func TestAcceptOrder_NonOwnerIsForbidden(t *testing.T) {
	f := newFixture()
	placed := placeOrder(t, f)

	_, err := f.service.AcceptOrder(context.Background(), placed.ID, "owner-2", "req")

	var forbid *apperrors.AuthorizationError
	require.True(t, errors.As(err, &forbid))
	assert.Equal(t, models.StatusPending, f.store.orders[placed.ID].Status)
}

func TestRejectOrder_RecordsReason(t *testing.T) {
	f := newFixture()
	placed := placeOrder(t, f)

	reason := "out of ingredients"
	order, err := f.service.RejectOrder(context.Background(), placed.ID, "owner-1", "req", &reason)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRejected, order.Status)
	assert.NotNil(t, order.RejectedAt)
	require.NotNil(t, order.RestaurantNotes)
	assert.Equal(t, reason, *order.RestaurantNotes)

	history := f.store.history[placed.ID]
	require.Len(t, history, 2)
	require.NotNil(t, history[1].Notes)
	assert.Equal(t, reason, *history[1].Notes)
}

func TestUpdateOrderStatus_FullLifecycle(t *testing.T) {
	f := newFixture()
	placed := placeOrder(t, f)

	_, err := f.service.AcceptOrder(context.Background(), placed.ID, "owner-1", "req")
	require.NoError(t, err)

	for _, status := range []models.OrderStatus{
		models.StatusPreparing, models.StatusReady, models.StatusDelivering, models.StatusDelivered,
	} {
		order, err := f.service.UpdateOrderStatus(context.Background(), placed.ID, "owner-1", status, nil, "req")
		require.NoError(t, err, "transition to %s", status)
		assert.Equal(t, status, order.Status)
	}

	// One pending row plus five transitions.
	history := f.store.history[placed.ID]
	require.Len(t, history, 6)
	assert.Equal(t, models.StatusDelivered, history[5].Status)

	order := f.store.orders[placed.ID]
	assert.NotNil(t, order.PreparingStartedAt)
	assert.NotNil(t, order.ReadyAt)
	assert.NotNil(t, order.DeliveringStartedAt)
	assert.NotNil(t, order.DeliveredAt)
}

func TestUpdateOrderStatus_TerminalIsConflict(t *testing.T) {
	f := newFixture()
	placed := placeOrder(t, f)

	reason := "no"
	_, err := f.service.RejectOrder(context.Background(), placed.ID, "owner-1", "req", &reason)
	require.NoError(t, err)

	_, err = f.service.UpdateOrderStatus(context.Background(), placed.ID, "owner-1", models.StatusAccepted, nil, "req")

	var conflict *apperrors.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Contains(t, conflict.Error(), "final status")
}

func TestUpdateOrderStatus_IllegalStepIsConflict(t *testing.T) {
	f := newFixture()
	placed := placeOrder(t, f)

	_, err := f.service.UpdateOrderStatus(context.Background(), placed.ID, "owner-1", models.StatusDelivered, nil, "req")

	var conflict *apperrors.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "invalid transition from pending to delivered", conflict.Error())
}

func TestGetOrderDetails_Authorization(t *testing.T) {
	f := newFixture()
	placed := placeOrder(t, f)

	details, err := f.service.GetOrderDetails(context.Background(), placed.ID, "cust-1", RoleCustomer)
	require.NoError(t, err)
	assert.Len(t, details.Items, 2)
	assert.Len(t, details.History, 1)

	_, err = f.service.GetOrderDetails(context.Background(), placed.ID, "cust-2", RoleCustomer)
	var forbid *apperrors.AuthorizationError
	require.True(t, errors.As(err, &forbid))

	_, err = f.service.GetOrderDetails(context.Background(), placed.ID, "owner-1", RoleOwner)
	require.NoError(t, err)

	_, err = f.service.GetOrderDetails(context.Background(), placed.ID, "owner-2", RoleOwner)
	require.True(t, errors.As(err, &forbid))
}

func TestGetRestaurantOrders_OwnershipRequired(t *testing.T) {
	f := newFixture()
	placeOrder(t, f)

	orders, err := f.service.GetRestaurantOrders(context.Background(), "rest-1", "owner-1", models.OrderFilters{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	_, err = f.service.GetRestaurantOrders(context.Background(), "rest-1", "owner-2", models.OrderFilters{})
	var forbid *apperrors.AuthorizationError
	require.True(t, errors.As(err, &forbid))

	_, err = f.service.GetRestaurantOrders(context.Background(), "rest-ghost", "owner-1", models.OrderFilters{})
	var notFound *apperrors.NotFoundError
	require.True(t, errors.As(err, &notFound))
}
