package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/dinedesk/dinedesk/internal/models"
)

// ErrSessionClosed is returned by Next once a session is closed and its
// remaining queue, if any, has been abandoned.
var ErrSessionClosed = errors.New("feed session closed")

// Session is one kitchen display's subscription to the live order feed.
// It is owned exclusively by its connection handler: the handler calls
// Next in a loop and unsubscribes when the connection ends.
//
// A fresh session replays a backlog before live events. The caller must
// subscribe first and snapshot the store second; events published between
// the two land in the live queue, so nothing is lost. An order that
// changes during the snapshot read can appear both as a snapshot frame
// and as a live frame — consumers key frames by order id, which makes the
// duplicate harmless. That duplicate window is the accepted alternative
// to locking the store across the handoff.
type Session struct {
	queue chan models.OrderEvent
	done  chan struct{}

	mu      sync.Mutex
	backlog []models.OrderEvent
	closed  bool
}

func newSession(queueSize int) *Session {
	return &Session{
		queue: make(chan models.OrderEvent, queueSize),
		done:  make(chan struct{}),
	}
}

// SetBacklog installs the snapshot frames replayed before live events.
// Called once, before the first Next.
func (s *Session) SetBacklog(events []models.OrderEvent) {
	s.mu.Lock()
	s.backlog = events
	s.mu.Unlock()
}

// Next returns the next event for this display: backlog frames first, then
// live frames in publish order. It blocks until an event arrives, the
// session closes (ErrSessionClosed), or ctx is cancelled. This is the only
// blocking wait in the delivery path.
func (s *Session) Next(ctx context.Context) (models.OrderEvent, error) {
	s.mu.Lock()
	if len(s.backlog) > 0 {
		event := s.backlog[0]
		s.backlog = s.backlog[1:]
		s.mu.Unlock()
		return event, nil
	}
	closed := s.closed
	s.mu.Unlock()

	if closed {
		// Drain anything that was queued before the close; afterwards the
		// queue contents are discarded.
		select {
		case event := <-s.queue:
			return event, nil
		default:
			return models.OrderEvent{}, ErrSessionClosed
		}
	}

	select {
	case event := <-s.queue:
		return event, nil
	case <-s.done:
		select {
		case event := <-s.queue:
			return event, nil
		default:
			return models.OrderEvent{}, ErrSessionClosed
		}
	case <-ctx.Done():
		return models.OrderEvent{}, ctx.Err()
	}
}

// Done is closed when the session is closed; handlers can select on it
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// close marks the session closed and wakes any blocked Next. Safe to call
// more than once.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
