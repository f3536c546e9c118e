package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dinedesk/dinedesk/internal/broadcast"
	"github.com/dinedesk/dinedesk/internal/models"
	apperrors "github.com/dinedesk/dinedesk/pkg/errors"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// OrderStore is the persistence surface the service coordinates against.
type OrderStore interface {
	CreateOrder(ctx context.Context, draft *models.OrderDraft) (*models.Order, error)
	UpdateStatus(ctx context.Context, id int64, newStatus models.OrderStatus) (*models.Order, models.OrderStatus, error)
	ListActive(ctx context.Context) ([]*models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]*models.Order, error)
	CountByStatus(ctx context.Context, since time.Time) ([]models.StatusCount, error)
}

// MenuStore resolves client-supplied item ids against the menu.
type MenuStore interface {
	List(ctx context.Context) ([]models.MenuItem, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]models.MenuItem, error)
}

// OrderService validates incoming orders, persists them, and fans the
// resulting events out to live feed subscribers.
type OrderService struct {
	store       OrderStore
	menu        MenuStore
	broadcaster *broadcast.Broadcaster
	validate    *validator.Validate
	logger      logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(
	store OrderStore,
	menu MenuStore,
	broadcaster *broadcast.Broadcaster,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		store:       store,
		menu:        menu,
		broadcaster: broadcaster,
		validate:    validator.New(),
		logger:      logger,
	}
}

// PlaceOrderItem is one requested line item.
type PlaceOrderItem struct {
	ID  int64 `json:"id" validate:"required,gt=0"`
	Qty int   `json:"qty" validate:"required,gt=0"`
}

// PlaceOrderRequest carries the fields a client submits when placing an order.
type PlaceOrderRequest struct {
	Customer      string           `json:"customer" validate:"required"`
	Phone         string           `json:"phone"`
	Email         string           `json:"email" validate:"omitempty,email"`
	Items         []PlaceOrderItem `json:"items" validate:"required,min=1,dive"`
	Total         float64          `json:"total" validate:"gte=0"`
	PaymentMethod string           `json:"paymentMethod" validate:"required"`
	OrderType     string           `json:"orderType" validate:"required"`
	Notes         string           `json:"notes"`
}

// normalizeOrderType folds display spellings like "dine-in" and "Takeout"
// onto the stored values.
func normalizeOrderType(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dine_in", "dine-in", "dinein":
		return models.OrderTypeDineIn, nil
	case "takeout", "take-out", "take_away", "takeaway":
		return models.OrderTypeTakeout, nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown order type %q", s))
	}
}

// PlaceOrder validates the request, persists the order, and publishes an
// order_created event. The event is published only after the store commit
// succeeds; a crash between commit and publish is reconciled when feed
// clients reconnect and replay the active backlog.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	orderType, err := normalizeOrderType(req.OrderType)

	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ID)
	}

	menuItems, err := s.menu.GetByIDs(ctx, ids)

	if err != nil {
		s.logger.Error("Failed to resolve menu items", "error", err)
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		mi, ok := menuItems[it.ID]
		if !ok {
			return nil, apperrors.NewValidationError(fmt.Sprintf("unknown menu item %d", it.ID))
		}
		items = append(items, models.OrderItem{
			MenuItemID: mi.ID,
			Name:       mi.Name,
			Quantity:   it.Qty,
			UnitPrice:  mi.Price,
		})
	}

	draft := &models.OrderDraft{
		CustomerName:  strings.TrimSpace(req.Customer),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.TrimSpace(req.Email),
		Items:         items,
		TotalAmount:   req.Total,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		OrderType:     orderType,
		Notes:         req.Notes,
	}

	order, err := s.store.CreateOrder(ctx, draft)

	if err != nil {
		return nil, err
	}

	s.broadcaster.Publish(models.NewOrderCreatedEvent(order))

	s.logger.Info("Order placed", "order_id", order.ID, "customer", order.CustomerName, "total", order.TotalAmount)
	return order, nil
}

// UpdateOrderStatus moves an order through the kitchen state machine and
// publishes an order_status_changed event on success. Not-found and
// invalid-transition errors from the store are surfaced unchanged.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, status string) (*models.Order, error) {
	newStatus, err := models.ParseStatus(status)

	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	order, oldStatus, err := s.store.UpdateStatus(ctx, id, newStatus)

	if err != nil {
		return nil, err
	}

	s.broadcaster.Publish(models.NewOrderStatusChangedEvent(order, oldStatus))

	s.logger.Info("Order status updated", "order_id", order.ID, "from", oldStatus, "to", order.Status)
	return order, nil
}

// OpenFeed registers a new live feed subscriber. The session is subscribed
// before the backlog snapshot is taken, so no event published in between is
// lost; an event may appear both in the backlog and live, and consumers
// de-duplicate by order id.
func (s *OrderService) OpenFeed(ctx context.Context) (*broadcast.Session, error) {
	session := s.broadcaster.Subscribe()

	active, err := s.store.ListActive(ctx)

	if err != nil {
		s.broadcaster.Unsubscribe(session)
		s.logger.Error("Failed to load feed backlog", "error", err)
		return nil, err
	}

	backlog := make([]models.OrderEvent, 0, len(active))
	for _, order := range active {
		backlog = append(backlog, models.NewOrderSnapshotEvent(order))
	}
	session.SetBacklog(backlog)

	return session, nil
}

// CloseFeed releases a session previously returned by OpenFeed.
func (s *OrderService) CloseFeed(session *broadcast.Session) {
	s.broadcaster.Unsubscribe(session)
}

// GetOrder retrieves a single order with its line items.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.store.GetByID(ctx, id)
}

// ListOrders retrieves orders newest first, with pagination.
func (s *OrderService) ListOrders(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListOrders(ctx, limit, offset)
}

// ListActiveOrders retrieves every order not in a terminal status, oldest first.
func (s *OrderService) ListActiveOrders(ctx context.Context) ([]*models.Order, error) {
	return s.store.ListActive(ctx)
}

// ListMenu retrieves the current menu.
func (s *OrderService) ListMenu(ctx context.Context) ([]models.MenuItem, error) {
	return s.menu.List(ctx)
}

// DailyReport summarizes order counts and revenue per status since local
// midnight UTC.
type DailyReport struct {
	Date     string               `json:"date"`
	Orders   int                  `json:"orders"`
	Revenue  float64              `json:"revenue"`
	ByStatus []models.StatusCount `json:"by_status"`
}

// GetDailyReport builds the day's order summary.
func (s *OrderService) GetDailyReport(ctx context.Context) (*DailyReport, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	counts, err := s.store.CountByStatus(ctx, midnight)

	if err != nil {
		return nil, err
	}

	report := &DailyReport{
		Date:     midnight.Format("2006-01-02"),
		ByStatus: counts,
	}
	for _, c := range counts {
		report.Orders += c.Count
		report.Revenue += c.Total
	}
	return report, nil
}
