package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dinedesk/dinedesk/internal/models"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

func testEvent() *models.OrderEvent {
	order := &models.Order{
		ID:           7,
		CustomerName: "Alice",
		Status:       models.StatusReady,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	event := models.NewOrderStatusChangedEvent(order, models.StatusPreparing)
	return &event
}

func TestNotifyDeliversEvent(t *testing.T) {
	var received atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewNotifierClient(ts.URL, logger.NewNop())

	if err := client.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if received.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", received.Load())
	}
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewNotifierClient(ts.URL, logger.NewNop())

	if err := client.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify returned error after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestNotifyDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	client := NewNotifierClient(ts.URL, logger.NewNop())

	if err := client.Notify(context.Background(), testEvent()); err == nil {
		t.Fatal("expected rejection to surface")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestNotifyOpensCircuitAfterRepeatedFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewNotifierClient(ts.URL, logger.NewNop())

	// Each Notify call exhausts its retries and counts one breaker failure.
	for i := 0; i < 5; i++ {
		if err := client.Notify(context.Background(), testEvent()); err == nil {
			t.Fatal("expected delivery failure")
		}
	}

	metrics := client.CircuitMetrics()
	if metrics["state"] != "open" {
		t.Fatalf("expected open circuit, got %v", metrics["state"])
	}

	client.ResetCircuit()

	metrics = client.CircuitMetrics()
	if metrics["state"] != "closed" {
		t.Errorf("expected closed circuit after reset, got %v", metrics["state"])
	}
}

func TestNotifyWithoutWebhookIsNoop(t *testing.T) {
	client := NewNotifierClient("", logger.NewNop())

	if err := client.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify returned error without webhook: %v", err)
	}
}
