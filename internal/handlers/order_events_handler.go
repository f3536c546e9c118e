package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"github.com/dinedesk/dinedesk/internal/clients"
	"github.com/dinedesk/dinedesk/internal/models"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// OrderEventsHandler consumes order events from Kafka and drives the
// downstream notifier. Created orders trigger a new-order notification;
// terminal status changes trigger a pickup/cancellation notification.
type OrderEventsHandler struct {
	notifier *clients.NotifierClient
	logger   logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(notifier *clients.NotifierClient, logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// HandleMessage handles one consumed Kafka message
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.OrderEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("Failed to unmarshal order event", "error", err, "topic", msg.Topic)
		return fmt.Errorf("failed to unmarshal order event: %w", err)
	}

	h.logger.Info("Handling order event",
		"eventType", event.Type,
		"eventID", event.EventID,
		"orderID", event.OrderID,
	)

	switch event.Type {
	case models.EventOrderCreated:
		return h.handleOrderCreated(ctx, &event)
	case models.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(ctx, &event)
	default:
		h.logger.Warn("Unknown event type", "eventType", event.Type)
		return nil
	}
}

func (h *OrderEventsHandler) handleOrderCreated(ctx context.Context, event *models.OrderEvent) error {
	return h.notifier.Notify(ctx, event)
}

// handleOrderStatusChanged notifies only on statuses a customer cares
// about; intermediate kitchen moves stay internal.
func (h *OrderEventsHandler) handleOrderStatusChanged(ctx context.Context, event *models.OrderEvent) error {
	switch event.Status {
	case models.StatusReady, models.StatusCompleted, models.StatusCancelled:
		return h.notifier.Notify(ctx, event)
	default:
		return nil
	}
}
