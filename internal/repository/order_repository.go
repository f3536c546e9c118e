package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dinedesk/dinedesk/internal/database"
	"github.com/dinedesk/dinedesk/internal/models"
	apperrors "github.com/dinedesk/dinedesk/pkg/errors"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

var (
	// ErrDatabase wraps unexpected persistence failures. Callers see it as
	// a generic failure; the underlying error stays in the logs.
	ErrDatabase = errors.New("database error")
)

// OrderRepository is the durable, authoritative record of orders. All
// mutations run in a single transaction so a reader never observes a
// partially written order, and every committed mutation also records an
// outbox row for the Kafka relay.
type OrderRepository struct {
	db         *database.Database
	outboxRepo *OutboxRepository
	logger     logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, outboxRepo *OutboxRepository, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// CreateOrder persists a validated draft as a new order with status
// incoming. The order row, its line items, and the order_created outbox
// row commit atomically; on any failure nothing is written.
func (r *OrderRepository) CreateOrder(ctx context.Context, draft *models.OrderDraft) (*models.Order, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	order := &models.Order{
		CustomerName:  draft.CustomerName,
		Phone:         draft.Phone,
		Email:         draft.Email,
		TotalAmount:   draft.TotalAmount,
		PaymentMethod: draft.PaymentMethod,
		OrderType:     draft.OrderType,
		Notes:         draft.Notes,
		Status:        models.StatusIncoming,
	}

	err = tx.QueryRowxContext(
		ctx,
		`INSERT INTO orders (customer_name, phone, email, total_amount, payment_method, order_type, notes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		order.CustomerName,
		order.Phone,
		order.Email,
		order.TotalAmount,
		order.PaymentMethod,
		order.OrderType,
		order.Notes,
		order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)

	if err != nil {
		r.logger.Error("Failed to insert order", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	order.Items = make([]models.OrderItem, 0, len(draft.Items))
	for _, item := range draft.Items {
		item.OrderID = order.ID

		err = tx.QueryRowxContext(
			ctx,
			`INSERT INTO order_items (order_id, menu_item_id, name, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			item.OrderID,
			item.MenuItemID,
			item.Name,
			item.Quantity,
			item.UnitPrice,
		).Scan(&item.ID)

		if err != nil {
			r.logger.Error("Failed to insert order item", "error", err, "orderID", order.ID)
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}

		order.Items = append(order.Items, item)
	}

	outboxMsg, err := models.NewOutboxMessage(models.NewOrderCreatedEvent(order))

	if err != nil {
		return nil, fmt.Errorf("failed to build outbox message: %w", err)
	}

	if err = r.outboxRepo.CreateInTx(ctx, tx, outboxMsg); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("Failed to commit order creation", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return order, nil
}

// UpdateStatus moves an order to a new status and returns the updated
// order along with the status it moved from. The current row is locked
// for the duration of the read-modify-write, so two concurrent updates to
// the same order serialize. Returns a not-found error for an unknown id
// and an invalid-transition error when the state machine forbids the move;
// in both cases nothing is mutated.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, newStatus models.OrderStatus) (*models.Order, models.OrderStatus, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	var order models.Order

	err = tx.GetContext(
		ctx,
		&order,
		`SELECT id, customer_name, phone, email, total_amount, payment_method, order_type, notes, status, created_at, updated_at
		 FROM orders
		 WHERE id = $1
		 FOR UPDATE`,
		id,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = apperrors.NewNotFoundError(fmt.Sprintf("order %d not found", id))
			return nil, "", err
		}
		r.logger.Error("Failed to lock order for update", "error", err, "orderID", id)
		return nil, "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	oldStatus := order.Status

	if !oldStatus.CanTransitionTo(newStatus) {
		err = apperrors.NewInvalidTransitionError(
			fmt.Sprintf("order %d cannot move from %s to %s", id, oldStatus, newStatus))
		return nil, "", err
	}

	order.Status = newStatus
	order.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(
		ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		order.Status,
		order.UpdatedAt,
		order.ID,
	)

	if err != nil {
		r.logger.Error("Failed to update order status", "error", err, "orderID", id)
		return nil, "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err = r.loadItemsInTx(ctx, tx, &order); err != nil {
		return nil, "", err
	}

	outboxMsg, err := models.NewOutboxMessage(models.NewOrderStatusChangedEvent(&order, oldStatus))

	if err != nil {
		return nil, "", fmt.Errorf("failed to build outbox message: %w", err)
	}

	if err = r.outboxRepo.CreateInTx(ctx, tx, outboxMsg); err != nil {
		return nil, "", err
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("Failed to commit status update", "error", err, "orderID", id)
		return nil, "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &order, oldStatus, nil
}

// ListActive retrieves every order not in a terminal status, oldest first.
// The ordering is what backlog replay uses to rebuild a kitchen display.
func (r *OrderRepository) ListActive(ctx context.Context) ([]*models.Order, error) {
	query := `
		SELECT id, customer_name, phone, email, total_amount, payment_method, order_type, notes, status, created_at, updated_at
		FROM orders
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at ASC, id ASC
	`

	var orders []*models.Order

	err := r.db.DB.SelectContext(ctx, &orders, query, models.StatusCompleted, models.StatusCancelled)

	if err != nil {
		r.logger.Error("Failed to list active orders", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// GetByID retrieves an order and its line items
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `
		SELECT id, customer_name, phone, email, total_amount, payment_method, order_type, notes, status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order models.Order
	err := r.db.DB.GetContext(ctx, &order, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %d not found", id))
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	orders := []*models.Order{&order}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return &order, nil
}

// ListOrders retrieves orders newest first, with pagination
func (r *OrderRepository) ListOrders(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	query := `
		SELECT id, customer_name, phone, email, total_amount, payment_method, order_type, notes, status, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	var orders []*models.Order

	err := r.db.DB.SelectContext(ctx, &orders, query, limit, offset)

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err, "limit", limit, "offset", offset)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// CountByStatus reports order counts and revenue per status since the
// given time. Used by the daily report endpoint.
func (r *OrderRepository) CountByStatus(ctx context.Context, since time.Time) ([]models.StatusCount, error) {
	query := `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total
		FROM orders
		WHERE created_at >= $1
		GROUP BY status
		ORDER BY status
	`

	var counts []models.StatusCount

	err := r.db.DB.SelectContext(ctx, &counts, query, since)

	if err != nil {
		r.logger.Error("Failed to count orders by status", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return counts, nil
}

// attachItems loads line items for a batch of orders in one query
func (r *OrderRepository) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
	}

	var items []models.OrderItem

	err := r.db.DB.SelectContext(
		ctx,
		&items,
		`SELECT id, order_id, menu_item_id, name, quantity, unit_price
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY id ASC`,
		pq.Array(ids),
	)

	if err != nil {
		r.logger.Error("Failed to load order items", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	return nil
}

// loadItemsInTx loads line items for one order inside a transaction
func (r *OrderRepository) loadItemsInTx(ctx context.Context, tx sqlxQueryer, order *models.Order) error {
	order.Items = []models.OrderItem{}

	err := tx.SelectContext(
		ctx,
		&order.Items,
		`SELECT id, order_id, menu_item_id, name, quantity, unit_price
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id ASC`,
		order.ID,
	)

	if err != nil {
		r.logger.Error("Failed to load order items", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// sqlxQueryer is the subset of sqlx.Tx used by item loading
type sqlxQueryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}
