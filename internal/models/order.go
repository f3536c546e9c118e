package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus represents the lifecycle status of an order
type OrderStatus string

const (
	StatusIncoming  OrderStatus = "incoming"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// statusRank orders the non-cancelled statuses along the kitchen pipeline.
// Transitions may only increase the rank.
var statusRank = map[OrderStatus]int{
	StatusIncoming:  0,
	StatusPreparing: 1,
	StatusReady:     2,
	StatusCompleted: 3,
}

// ParseStatus normalizes a client-supplied status string. "served" is
// accepted as an alias of "completed" for displays that use the older name.
func ParseStatus(s string) (OrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "incoming":
		return StatusIncoming, nil
	case "preparing":
		return StatusPreparing, nil
	case "ready":
		return StatusReady, nil
	case "completed", "served":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown order status %q", s)
	}
}

// IsTerminal reports whether no further transitions are possible
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the status machine permits moving from s
// to target. Forward moves along incoming → preparing → ready → completed
// are allowed (including skips); cancellation is reachable from any
// non-terminal state; nothing moves backward or out of a terminal state.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if target == StatusCancelled {
		return true
	}

	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[target]
	if !ok {
		return false
	}
	return to > from
}

// OrderType values accepted on submission
const (
	OrderTypeDineIn  = "dine_in"
	OrderTypeTakeout = "takeout"
)

// OrderItem represents one line of an order
type OrderItem struct {
	ID         int64   `db:"id" json:"id"`
	OrderID    int64   `db:"order_id" json:"order_id"`
	MenuItemID int64   `db:"menu_item_id" json:"menu_item_id"`
	Name       string  `db:"name" json:"name"`
	Quantity   int     `db:"quantity" json:"quantity"`
	UnitPrice  float64 `db:"unit_price" json:"unit_price"`
}

// Order represents one placed order. Orders are never deleted; they are
// retained for reporting after reaching a terminal status.
type Order struct {
	ID            int64       `db:"id" json:"id"`
	CustomerName  string      `db:"customer_name" json:"customer"`
	Phone         string      `db:"phone" json:"phone,omitempty"`
	Email         string      `db:"email" json:"email,omitempty"`
	Items         []OrderItem `db:"-" json:"items"`
	TotalAmount   float64     `db:"total_amount" json:"total"`
	PaymentMethod string      `db:"payment_method" json:"payment_method"`
	OrderType     string      `db:"order_type" json:"order_type"`
	Notes         string      `db:"notes" json:"notes,omitempty"`
	Status        OrderStatus `db:"status" json:"status"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// OrderDraft carries the validated fields of an order before it is
// assigned an identity by the store. Line items are already resolved
// against the menu.
type OrderDraft struct {
	CustomerName  string
	Phone         string
	Email         string
	Items         []OrderItem
	TotalAmount   float64
	PaymentMethod string
	OrderType     string
	Notes         string
}
