package models

import (
	"time"
)

// EventType identifies what an order event describes
type EventType string

const (
	EventOrderCreated       EventType = "order_created"
	EventOrderStatusChanged EventType = "order_status_changed"

	// EventOrderSnapshot is synthesized during backlog replay for a
	// late-joining feed; it carries the order's current state rather
	// than a transition.
	EventOrderSnapshot EventType = "order_snapshot"
)

// OrderEvent is one frame of the live order feed. Frames are delivered to
// kitchen displays in publish order; snapshot frames replay the store's
// active orders to a fresh subscriber before live frames. Consumers key on
// OrderID, so a duplicate snapshot+live frame for the same order is safe.
type OrderEvent struct {
	Type      EventType   `json:"type"`
	EventID   string      `json:"event_id"`
	OrderID   int64       `json:"order_id"`
	Status    OrderStatus `json:"status"`
	OldStatus OrderStatus `json:"old_status,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Order     *Order      `json:"order"`
}

// NewOrderCreatedEvent builds the event published when an order is placed
func NewOrderCreatedEvent(order *Order) OrderEvent {
	return OrderEvent{
		Type:      EventOrderCreated,
		EventID:   GenerateID("evt"),
		OrderID:   order.ID,
		Status:    order.Status,
		Timestamp: GetCurrentTime(),
		Order:     order,
	}
}

// NewOrderStatusChangedEvent builds the event published after a status update
func NewOrderStatusChangedEvent(order *Order, oldStatus OrderStatus) OrderEvent {
	return OrderEvent{
		Type:      EventOrderStatusChanged,
		EventID:   GenerateID("evt"),
		OrderID:   order.ID,
		Status:    order.Status,
		OldStatus: oldStatus,
		Timestamp: GetCurrentTime(),
		Order:     order,
	}
}

// NewOrderSnapshotEvent builds a backlog replay frame for an active order
func NewOrderSnapshotEvent(order *Order) OrderEvent {
	return OrderEvent{
		Type:      EventOrderSnapshot,
		EventID:   GenerateID("evt"),
		OrderID:   order.ID,
		Status:    order.Status,
		Timestamp: GetCurrentTime(),
		Order:     order,
	}
}
