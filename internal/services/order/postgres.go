package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"food-market/internal/database"
	"food-market/internal/models"
)

// ErrStatusConflict means the order's status changed between the read and
// the conditional update, so the requested transition no longer applies.
var ErrStatusConflict = errors.New("order status changed concurrently")

// maxNumberingRetries bounds the retry loop around the daily-order-number
// unique constraint.
const maxNumberingRetries = 3

// Repository persists orders, line items and the status audit log.
type Repository struct {
	db *database.DB
}

// NewRepository creates an order repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const orderColumns = `
	id, restaurant_id, customer_id, daily_order_number, order_date, order_status,
	subtotal, discount_amount, final_price, voucher_id, voucher_code,
	street, house_number, staircase, door, postal_code, city,
	estimated_delivery_minutes, customer_notes, restaurant_notes,
	accepted_at, rejected_at, preparing_started_at, ready_at,
	delivering_started_at, delivered_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.RestaurantID, &o.CustomerID, &o.DailyOrderNumber, &o.OrderDate, &o.Status,
		&o.Subtotal, &o.DiscountAmount, &o.FinalPrice, &o.VoucherID, &o.VoucherCode,
		&o.DeliveryAddress.Street, &o.DeliveryAddress.HouseNumber, &o.DeliveryAddress.Staircase,
		&o.DeliveryAddress.Door, &o.DeliveryAddress.PostalCode, &o.DeliveryAddress.City,
		&o.EstimatedDeliveryMinutes, &o.CustomerNotes, &o.RestaurantNotes,
		&o.AcceptedAt, &o.RejectedAt, &o.PreparingStartedAt, &o.ReadyAt,
		&o.DeliveringStartedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const nextDailyNumberSQL = `
	SELECT COALESCE(MAX(daily_order_number), 0) + 1
	FROM orders WHERE restaurant_id = $1 AND order_date = $2`

const insertOrderSQL = `
	INSERT INTO orders (
		id, restaurant_id, customer_id, daily_order_number, order_date, order_status,
		subtotal, discount_amount, final_price, voucher_id, voucher_code,
		street, house_number, staircase, door, postal_code, city,
		estimated_delivery_minutes, customer_notes
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	RETURNING created_at, updated_at`

const insertOrderItemSQL = `
	INSERT INTO order_items (order_id, dish_id, dish_name, dish_price, quantity, subtotal)
	VALUES ($1, $2, $3, $4, $5, $6)`

const insertStatusHistorySQL = `
	INSERT INTO order_status_history (order_id, status, notes)
	VALUES ($1, $2, $3)`

// CreateOrder inserts the order, its line items and the initial pending
// history row in one transaction. The daily order number is assigned as
// MAX+1 under the (restaurant_id, order_date, daily_order_number) unique
// constraint; a conflicting concurrent insert triggers a bounded retry with
// a fresh transaction.
func (r *Repository) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	var lastErr error
	for attempt := 0; attempt < maxNumberingRetries; attempt++ {
		err := r.createOrderOnce(ctx, order, items)
		if err == nil {
			return nil
		}
		if !isDailyNumberConflict(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("assign daily order number after %d attempts: %w", maxNumberingRetries, lastErr)
}

func (r *Repository) createOrderOnce(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var dailyNumber int
	err = tx.QueryRow(ctx, nextDailyNumberSQL, order.RestaurantID, order.OrderDate).Scan(&dailyNumber)
	if err != nil {
		return fmt.Errorf("compute daily order number: %w", err)
	}
	order.DailyOrderNumber = dailyNumber

	err = tx.QueryRow(ctx, insertOrderSQL,
		order.ID, order.RestaurantID, order.CustomerID, order.DailyOrderNumber,
		order.OrderDate, order.Status,
		order.Subtotal, order.DiscountAmount, order.FinalPrice,
		order.VoucherID, order.VoucherCode,
		order.DeliveryAddress.Street, order.DeliveryAddress.HouseNumber,
		order.DeliveryAddress.Staircase, order.DeliveryAddress.Door,
		order.DeliveryAddress.PostalCode, order.DeliveryAddress.City,
		order.EstimatedDeliveryMinutes, order.CustomerNotes,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	// Line items go in as one batch round trip.
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(insertOrderItemSQL,
			order.ID, item.DishID, item.DishName, item.DishPrice, item.Quantity, item.Subtotal)
	}
	results := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert order items: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close item batch: %w", err)
	}

	if _, err := tx.Exec(ctx, insertStatusHistorySQL, order.ID, models.StatusPending, nil); err != nil {
		return fmt.Errorf("insert initial status history: %w", err)
	}

	return tx.Commit(ctx)
}

func isDailyNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "orders_daily_number_unique"
}

// GetOrder returns the order or nil when it does not exist.
func (r *Repository) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

const getOrderItemsSQL = `
	SELECT id, order_id, dish_id, dish_name, dish_price, quantity, subtotal
	FROM order_items WHERE order_id = $1 ORDER BY id ASC`

// GetOrderItems returns the line items of an order.
func (r *Repository) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := r.db.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.DishID, &item.DishName,
			&item.DishPrice, &item.Quantity, &item.Subtotal)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const getStatusHistorySQL = `
	SELECT id, order_id, status, changed_at, notes
	FROM order_status_history WHERE order_id = $1 ORDER BY changed_at ASC, id ASC`

// GetStatusHistory returns the append-only status log of an order.
func (r *Repository) GetStatusHistory(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	rows, err := r.db.Query(ctx, getStatusHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("get status history: %w", err)
	}
	defer rows.Close()

	var history []models.OrderStatusHistory
	for rows.Next() {
		var entry models.OrderStatusHistory
		err := rows.Scan(&entry.ID, &entry.OrderID, &entry.Status, &entry.ChangedAt, &entry.Notes)
		if err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// UpdateStatus performs one status transition: the order row update (with
// the per-status timestamp set the first time the status is reached) and the
// history append happen in a single transaction. The update is conditional
// on the expected current status, so a concurrent transition surfaces as
// ErrStatusConflict instead of a lost update.
func (r *Repository) UpdateStatus(ctx context.Context, orderID string, from, to models.OrderStatus, notes *string) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The column name comes from the state machine's fixed map, never from
	// caller input.
	set := "order_status = $1, updated_at = NOW()"
	if col := TimestampColumn(to); col != "" {
		set += fmt.Sprintf(", %s = COALESCE(%s, NOW())", col, col)
	}
	updateSQL := fmt.Sprintf(
		`UPDATE orders SET %s WHERE id = $2 AND order_status = $3 RETURNING %s`,
		set, orderColumns)

	order, err := scanOrder(tx.QueryRow(ctx, updateSQL, to, orderID, from))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if _, err := tx.Exec(ctx, insertStatusHistorySQL, orderID, to, notes); err != nil {
		return nil, fmt.Errorf("append status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status transition: %w", err)
	}
	return order, nil
}

const setRestaurantNotesSQL = `
	UPDATE orders SET restaurant_notes = $1, updated_at = NOW() WHERE id = $2`

// SetRestaurantNotes records the restaurant's note on an order, e.g. a
// rejection reason.
func (r *Repository) SetRestaurantNotes(ctx context.Context, orderID string, notes *string) error {
	if err := r.db.Exec(ctx, setRestaurantNotesSQL, notes, orderID); err != nil {
		return fmt.Errorf("set restaurant notes: %w", err)
	}
	return nil
}

// ListCustomerOrders returns a customer's orders, newest first, with the
// restaurant name joined in.
func (r *Repository) ListCustomerOrders(ctx context.Context, customerID string, filters models.OrderFilters) ([]models.OrderWithRestaurant, error) {
	query, args := buildListQuery("o.customer_id", customerID, "r.name",
		"JOIN restaurants r ON r.id = o.restaurant_id", filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	defer rows.Close()

	var orders []models.OrderWithRestaurant
	for rows.Next() {
		order, name, err := scanOrderWithName(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer order: %w", err)
		}
		orders = append(orders, models.OrderWithRestaurant{Order: *order, RestaurantName: name})
	}
	return orders, rows.Err()
}

// ListRestaurantOrders returns a restaurant's orders, newest first, with the
// customer name joined in.
func (r *Repository) ListRestaurantOrders(ctx context.Context, restaurantID string, filters models.OrderFilters) ([]models.OrderWithCustomer, error) {
	query, args := buildListQuery("o.restaurant_id", restaurantID, "c.name",
		"JOIN customers c ON c.id = o.customer_id", filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list restaurant orders: %w", err)
	}
	defer rows.Close()

	var orders []models.OrderWithCustomer
	for rows.Next() {
		order, name, err := scanOrderWithName(rows)
		if err != nil {
			return nil, fmt.Errorf("scan restaurant order: %w", err)
		}
		orders = append(orders, models.OrderWithCustomer{Order: *order, CustomerName: name})
	}
	return orders, rows.Err()
}

func buildListQuery(keyColumn, keyValue, nameColumn, join string, filters models.OrderFilters) (string, []interface{}) {
	columns := qualifyOrderColumns()
	query := fmt.Sprintf(`SELECT %s, %s FROM orders o %s WHERE %s = $1`,
		columns, nameColumn, join, keyColumn)
	args := []interface{}{keyValue}

	if filters.Status != nil {
		args = append(args, *filters.Status)
		query += fmt.Sprintf(" AND o.order_status = $%d", len(args))
	}
	if filters.From != nil {
		args = append(args, *filters.From)
		query += fmt.Sprintf(" AND o.created_at >= $%d", len(args))
	}
	if filters.To != nil {
		args = append(args, *filters.To)
		query += fmt.Sprintf(" AND o.created_at <= $%d", len(args))
	}

	args = append(args, filters.Limit)
	query += fmt.Sprintf(" ORDER BY o.created_at DESC LIMIT $%d", len(args))
	args = append(args, filters.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return query, args
}

func qualifyOrderColumns() string {
	return `
	o.id, o.restaurant_id, o.customer_id, o.daily_order_number, o.order_date, o.order_status,
	o.subtotal, o.discount_amount, o.final_price, o.voucher_id, o.voucher_code,
	o.street, o.house_number, o.staircase, o.door, o.postal_code, o.city,
	o.estimated_delivery_minutes, o.customer_notes, o.restaurant_notes,
	o.accepted_at, o.rejected_at, o.preparing_started_at, o.ready_at,
	o.delivering_started_at, o.delivered_at, o.created_at, o.updated_at`
}

func scanOrderWithName(rows pgx.Rows) (*models.Order, string, error) {
	var (
		o    models.Order
		name string
	)
	err := rows.Scan(
		&o.ID, &o.RestaurantID, &o.CustomerID, &o.DailyOrderNumber, &o.OrderDate, &o.Status,
		&o.Subtotal, &o.DiscountAmount, &o.FinalPrice, &o.VoucherID, &o.VoucherCode,
		&o.DeliveryAddress.Street, &o.DeliveryAddress.HouseNumber, &o.DeliveryAddress.Staircase,
		&o.DeliveryAddress.Door, &o.DeliveryAddress.PostalCode, &o.DeliveryAddress.City,
		&o.EstimatedDeliveryMinutes, &o.CustomerNotes, &o.RestaurantNotes,
		&o.AcceptedAt, &o.RejectedAt, &o.PreparingStartedAt, &o.ReadyAt,
		&o.DeliveringStartedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
		&name,
	)
	if err != nil {
		return nil, "", err
	}
	return &o, name, nil
}
