// Package broadcast fans order events out to the connected kitchen
// displays. The broadcaster owns the subscriber set; each subscriber is a
// Session with a bounded delivery queue. Publishing never blocks and never
// fails: a subscriber that cannot keep up is disconnected and reconciles
// by reconnecting, which replays the active-order backlog from the store.
// The store stays the single source of truth; this layer is purely a
// delivery optimization.
package broadcast

import (
	"sync"

	"github.com/dinedesk/dinedesk/internal/models"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// DefaultQueueSize bounds a subscriber's delivery queue when no explicit
// size is configured.
const DefaultQueueSize = 64

// Broadcaster maintains the set of live feed sessions and delivers order
// events to all of them in publish order.
type Broadcaster struct {
	mu        sync.Mutex
	sessions  map[*Session]struct{}
	queueSize int
	closed    bool
	logger    logger.Logger
}

// New creates a broadcaster whose subscribers get delivery queues of the
// given size.
func New(queueSize int, logger logger.Logger) *Broadcaster {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}

	return &Broadcaster{
		sessions:  make(map[*Session]struct{}),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscribe registers a new live feed session and returns it. If the
// broadcaster is already closed the returned session is closed too, so
// the caller's receive loop ends immediately.
func (b *Broadcaster) Subscribe() *Session {
	s := newSession(b.queueSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.close()
		return s
	}

	b.sessions[s] = struct{}{}
	return s
}

// Unsubscribe removes a session from the set and closes it. Idempotent:
// unsubscribing twice, or unsubscribing a session that was already dropped
// by Publish, is a no-op.
func (b *Broadcaster) Unsubscribe(s *Session) {
	if s == nil {
		return
	}

	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()

	s.close()
}

// Publish delivers the event to every subscribed session's queue. The
// lock is held only for the membership walk and the non-blocking enqueue,
// which is what gives every subscriber the same global event order. A
// session whose queue is full is dropped rather than blocking the
// publisher; the failure is never surfaced to the caller.
func (b *Broadcaster) Publish(event models.OrderEvent) {
	var dropped []*Session

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	for s := range b.sessions {
		select {
		case s.queue <- event:
		default:
			dropped = append(dropped, s)
		}
	}

	for _, s := range dropped {
		delete(b.sessions, s)
		s.close()
	}
	b.mu.Unlock()

	for range dropped {
		b.logger.Warn("Dropped stalled feed subscriber",
			"event_type", event.Type,
			"order_id", event.OrderID)
	}
}

// Subscribers returns the current number of live sessions
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Close tears the broadcaster down, closing every session. Called once at
// process shutdown; Publish and Subscribe become no-ops afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sessions := make([]*Session, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[*Session]struct{})
	b.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
