package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dinedesk/dinedesk/internal/broadcast"
	"github.com/dinedesk/dinedesk/internal/models"
	apperrors "github.com/dinedesk/dinedesk/pkg/errors"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// memStore is an in-memory OrderStore with the same transition rules as
// the real one.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*models.Order

	failCreate error
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, orders: make(map[int64]*models.Order)}
}

func (m *memStore) CreateOrder(_ context.Context, draft *models.OrderDraft) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate != nil {
		return nil, m.failCreate
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:            m.nextID,
		CustomerName:  draft.CustomerName,
		Phone:         draft.Phone,
		Email:         draft.Email,
		Items:         draft.Items,
		TotalAmount:   draft.TotalAmount,
		PaymentMethod: draft.PaymentMethod,
		OrderType:     draft.OrderType,
		Notes:         draft.Notes,
		Status:        models.StatusIncoming,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.nextID++
	m.orders[order.ID] = order
	return order, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, newStatus models.OrderStatus) (*models.Order, models.OrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, "", apperrors.NewNotFoundError("order not found")
	}
	oldStatus := order.Status
	if !oldStatus.CanTransitionTo(newStatus) {
		return nil, "", apperrors.NewInvalidTransitionError("transition not allowed")
	}
	order.Status = newStatus
	order.UpdatedAt = time.Now().UTC()
	return order, oldStatus, nil
}

func (m *memStore) ListActive(_ context.Context) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []*models.Order
	for id := int64(1); id < m.nextID; id++ {
		if order, ok := m.orders[id]; ok && !order.Status.IsTerminal() {
			active = append(active, order)
		}
	}
	return active, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("order not found")
	}
	return order, nil
}

func (m *memStore) ListOrders(_ context.Context, limit, offset int) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*models.Order
	for id := m.nextID - 1; id >= 1; id-- {
		if order, ok := m.orders[id]; ok {
			all = append(all, order)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) CountByStatus(_ context.Context, since time.Time) ([]models.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStatus := make(map[models.OrderStatus]*models.StatusCount)
	var statuses []models.OrderStatus
	for _, order := range m.orders {
		if order.CreatedAt.Before(since) {
			continue
		}
		sc, ok := byStatus[order.Status]
		if !ok {
			sc = &models.StatusCount{Status: order.Status}
			byStatus[order.Status] = sc
			statuses = append(statuses, order.Status)
		}
		sc.Count++
		sc.Total += order.TotalAmount
	}
	counts := make([]models.StatusCount, 0, len(statuses))
	for _, status := range statuses {
		counts = append(counts, *byStatus[status])
	}
	return counts, nil
}

// memMenu is a fixed in-memory menu.
type memMenu struct {
	items map[int64]models.MenuItem
}

func newMemMenu() *memMenu {
	return &memMenu{items: map[int64]models.MenuItem{
		1: {ID: 1, Name: "Burger", Category: "mains", Price: 9.50},
		2: {ID: 2, Name: "Fries", Category: "sides", Price: 3.00},
	}}
}

func (m *memMenu) List(_ context.Context) ([]models.MenuItem, error) {
	items := make([]models.MenuItem, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	return items, nil
}

func (m *memMenu) GetByIDs(_ context.Context, ids []int64) (map[int64]models.MenuItem, error) {
	found := make(map[int64]models.MenuItem)
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			found[id] = it
		}
	}
	return found, nil
}

func newTestService(t *testing.T) (*OrderService, *memStore, *broadcast.Broadcaster) {
	t.Helper()

	store := newMemStore()
	b := broadcast.New(16, logger.NewNop())
	t.Cleanup(b.Close)
	svc := NewOrderService(store, newMemMenu(), b, logger.NewNop())
	return svc, store, b
}

func validRequest() *PlaceOrderRequest {
	return &PlaceOrderRequest{
		Customer:      "Alice",
		Items:         []PlaceOrderItem{{ID: 1, Qty: 2}},
		Total:         25.00,
		PaymentMethod: "cash",
		OrderType:     "dine-in",
	}
}

func recvEvent(t *testing.T, session *broadcast.Session) models.OrderEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	event, err := session.Next(ctx)
	if err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	return event
}

func TestPlaceOrderAssignsIDAndPublishes(t *testing.T) {
	svc, _, b := newTestService(t)
	session := b.Subscribe()
	defer b.Unsubscribe(session)

	order, err := svc.PlaceOrder(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if order.ID != 1 {
		t.Errorf("expected first order id 1, got %d", order.ID)
	}
	if order.Status != models.StatusIncoming {
		t.Errorf("expected status incoming, got %s", order.Status)
	}
	if order.OrderType != models.OrderTypeDineIn {
		t.Errorf("expected order type %q, got %q", models.OrderTypeDineIn, order.OrderType)
	}
	if len(order.Items) != 1 || order.Items[0].Name != "Burger" || order.Items[0].UnitPrice != 9.50 {
		t.Errorf("expected resolved Burger line item, got %+v", order.Items)
	}

	event := recvEvent(t, session)
	if event.Type != models.EventOrderCreated {
		t.Errorf("expected %s event, got %s", models.EventOrderCreated, event.Type)
	}
	if event.OrderID != order.ID {
		t.Errorf("expected event for order %d, got %d", order.ID, event.OrderID)
	}
}

func TestPlaceOrderRejectsInvalidRequests(t *testing.T) {
	svc, store, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(req *PlaceOrderRequest)
	}{
		{"missing customer", func(req *PlaceOrderRequest) { req.Customer = "" }},
		{"no items", func(req *PlaceOrderRequest) { req.Items = nil }},
		{"zero quantity", func(req *PlaceOrderRequest) { req.Items[0].Qty = 0 }},
		{"negative total", func(req *PlaceOrderRequest) { req.Total = -1 }},
		{"unknown menu item", func(req *PlaceOrderRequest) { req.Items[0].ID = 99 }},
		{"unknown order type", func(req *PlaceOrderRequest) { req.OrderType = "drive-thru" }},
		{"missing payment method", func(req *PlaceOrderRequest) { req.PaymentMethod = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)

			_, err := svc.PlaceOrder(context.Background(), req)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if len(store.orders) != 0 {
		t.Errorf("expected no persisted orders after rejected requests, got %d", len(store.orders))
	}
}

func TestPlaceOrderDoesNotPublishOnStoreFailure(t *testing.T) {
	svc, store, b := newTestService(t)
	store.failCreate = errors.New("connection reset")

	session := b.Subscribe()
	defer b.Unsubscribe(session)

	if _, err := svc.PlaceOrder(context.Background(), validRequest()); err == nil {
		t.Fatal("expected store failure to surface")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := session.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected no event after failed create, got err=%v", err)
	}
}

func TestUpdateOrderStatusPublishesTransition(t *testing.T) {
	svc, _, b := newTestService(t)

	order, err := svc.PlaceOrder(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	session := b.Subscribe()
	defer b.Unsubscribe(session)

	updated, err := svc.UpdateOrderStatus(context.Background(), order.ID, "ready")
	if err != nil {
		t.Fatalf("UpdateOrderStatus returned error: %v", err)
	}
	if updated.Status != models.StatusReady {
		t.Errorf("expected status ready, got %s", updated.Status)
	}

	event := recvEvent(t, session)
	if event.Type != models.EventOrderStatusChanged {
		t.Errorf("expected %s event, got %s", models.EventOrderStatusChanged, event.Type)
	}
	if event.OldStatus != models.StatusIncoming || event.Status != models.StatusReady {
		t.Errorf("expected incoming->ready, got %s->%s", event.OldStatus, event.Status)
	}
}

func TestUpdateOrderStatusSurfacesStoreErrors(t *testing.T) {
	svc, _, _ := newTestService(t)

	order, err := svc.PlaceOrder(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if _, err := svc.UpdateOrderStatus(context.Background(), order.ID+1, "ready"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}

	if _, err := svc.UpdateOrderStatus(context.Background(), order.ID, "ready"); err != nil {
		t.Fatalf("UpdateOrderStatus returned error: %v", err)
	}
	if _, err := svc.UpdateOrderStatus(context.Background(), order.ID, "incoming"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("expected invalid-transition error, got %v", err)
	}

	if _, err := svc.UpdateOrderStatus(context.Background(), order.ID, "bogus"); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for unknown status, got %v", err)
	}
}

func TestUpdateOrderStatusAcceptsServedAlias(t *testing.T) {
	svc, _, _ := newTestService(t)

	order, err := svc.PlaceOrder(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	updated, err := svc.UpdateOrderStatus(context.Background(), order.ID, "served")
	if err != nil {
		t.Fatalf("UpdateOrderStatus returned error: %v", err)
	}
	if updated.Status != models.StatusCompleted {
		t.Errorf("expected served to map to completed, got %s", updated.Status)
	}
}

func TestOpenFeedReplaysActiveOrdersThenLive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.PlaceOrder(ctx, validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	second, err := svc.PlaceOrder(ctx, validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	// Completed orders do not appear in the backlog.
	if _, err := svc.UpdateOrderStatus(ctx, second.ID, "completed"); err != nil {
		t.Fatalf("UpdateOrderStatus returned error: %v", err)
	}

	session, err := svc.OpenFeed(ctx)
	if err != nil {
		t.Fatalf("OpenFeed returned error: %v", err)
	}
	defer svc.CloseFeed(session)

	event := recvEvent(t, session)
	if event.Type != models.EventOrderSnapshot {
		t.Errorf("expected snapshot frame first, got %s", event.Type)
	}
	if event.OrderID != first.ID {
		t.Errorf("expected backlog for order %d, got %d", first.ID, event.OrderID)
	}

	third, err := svc.PlaceOrder(ctx, validRequest())
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	event = recvEvent(t, session)
	if event.Type != models.EventOrderCreated || event.OrderID != third.ID {
		t.Errorf("expected live created event for order %d, got %s for %d", third.ID, event.Type, event.OrderID)
	}
}

func TestGetDailyReportAggregates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.PlaceOrder(ctx, validRequest()); err != nil {
			t.Fatalf("PlaceOrder returned error: %v", err)
		}
	}
	if _, err := svc.UpdateOrderStatus(ctx, 1, "completed"); err != nil {
		t.Fatalf("UpdateOrderStatus returned error: %v", err)
	}

	report, err := svc.GetDailyReport(ctx)
	if err != nil {
		t.Fatalf("GetDailyReport returned error: %v", err)
	}
	if report.Orders != 3 {
		t.Errorf("expected 3 orders, got %d", report.Orders)
	}
	if report.Revenue != 75.00 {
		t.Errorf("expected revenue 75.00, got %v", report.Revenue)
	}
}
