package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dinedesk/dinedesk/internal/models"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// recvEvent reads one event from the session with a deadline
func recvEvent(t *testing.T, s *Session) models.OrderEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	event, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return event
}

func testEvent(orderID int64) models.OrderEvent {
	order := &models.Order{
		ID:           orderID,
		CustomerName: "Alice",
		Status:       models.StatusIncoming,
		CreatedAt:    time.Now().UTC(),
	}
	return models.NewOrderCreatedEvent(order)
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(8, logger.NewNop())
	defer b.Close()

	s := b.Subscribe()
	defer b.Unsubscribe(s)

	b.Publish(testEvent(1))

	event := recvEvent(t, s)
	if event.OrderID != 1 {
		t.Fatalf("got order %d, want 1", event.OrderID)
	}
	if event.Type != models.EventOrderCreated {
		t.Fatalf("got type %s, want %s", event.Type, models.EventOrderCreated)
	}
}

func TestSubscribersObserveSameOrder(t *testing.T) {
	b := New(16, logger.NewNop())
	defer b.Close()

	first := b.Subscribe()
	second := b.Subscribe()
	defer b.Unsubscribe(first)
	defer b.Unsubscribe(second)

	for i := int64(1); i <= 10; i++ {
		b.Publish(testEvent(i))
	}

	for _, s := range []*Session{first, second} {
		for i := int64(1); i <= 10; i++ {
			event := recvEvent(t, s)
			if event.OrderID != i {
				t.Fatalf("got order %d at position %d, want %d", event.OrderID, i, i)
			}
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(8, logger.NewNop())
	defer b.Close()

	s := b.Subscribe()
	b.Unsubscribe(s)
	b.Unsubscribe(s) // second call must be a no-op
	b.Unsubscribe(nil)

	if n := b.Subscribers(); n != 0 {
		t.Fatalf("got %d subscribers, want 0", n)
	}

	// Publishing after the unsubscribe must not panic or block
	b.Publish(testEvent(1))
}

func TestStalledSubscriberIsDropped(t *testing.T) {
	b := New(2, logger.NewNop())
	defer b.Close()

	stalled := b.Subscribe()
	healthy := b.Subscribe()
	defer b.Unsubscribe(healthy)

	// Fill the stalled session's queue past capacity without consuming
	for i := int64(1); i <= 3; i++ {
		b.Publish(testEvent(i))
		recvEvent(t, healthy)
	}

	if n := b.Subscribers(); n != 1 {
		t.Fatalf("got %d subscribers after overflow, want 1", n)
	}

	// The stalled session drains its queued events, then reports closure
	for i := 0; i < 2; i++ {
		recvEvent(t, stalled)
	}
	_, err := stalled.Next(context.Background())
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("got %v, want ErrSessionClosed", err)
	}

	// The healthy session keeps receiving
	b.Publish(testEvent(4))
	if event := recvEvent(t, healthy); event.OrderID != 4 {
		t.Fatalf("healthy subscriber got order %d, want 4", event.OrderID)
	}
}

func TestPublishNeverBlocksPublisher(t *testing.T) {
	b := New(1, logger.NewNop())
	defer b.Close()

	b.Subscribe() // never consumed

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 100; i++ {
			b.Publish(testEvent(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}
}

func TestCloseEndsAllSessions(t *testing.T) {
	b := New(8, logger.NewNop())

	first := b.Subscribe()
	second := b.Subscribe()

	b.Close()

	for _, s := range []*Session{first, second} {
		_, err := s.Next(context.Background())
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("got %v, want ErrSessionClosed", err)
		}
	}

	// Idempotent close, and Subscribe after close yields a closed session
	b.Close()
	s := b.Subscribe()
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("got %v, want ErrSessionClosed", err)
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New(256, logger.NewNop())
	defer b.Close()

	stop := make(chan struct{})
	go func() {
		for i := int64(1); ; i++ {
			select {
			case <-stop:
				return
			default:
				b.Publish(testEvent(i))
			}
		}
	}()

	// Churn the membership while publishes are in flight
	for i := 0; i < 100; i++ {
		s := b.Subscribe()
		b.Unsubscribe(s)
	}
	close(stop)
}
