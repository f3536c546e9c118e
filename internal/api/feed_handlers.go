package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dinedesk/dinedesk/internal/broadcast"
)

// orderFeedHandler streams order events as newline-delimited JSON. The
// client first receives a snapshot frame per active order, then live
// frames as they are published, until it disconnects.
func (s *Server) orderFeedHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)

	if !ok {
		s.respondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	ctx := r.Context()

	session, err := s.orderService.OpenFeed(ctx)

	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	defer s.orderService.CloseFeed(session)

	// The stream outlives the server's write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Warn("Failed to clear write deadline for feed", "error", err)
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)

	for {
		event, err := session.Next(ctx)

		if err != nil {
			// Client gone, or the server is shutting the feed down.
			if !errors.Is(err, broadcast.ErrSessionClosed) && ctx.Err() == nil {
				s.logger.Error("Feed session ended unexpectedly", "error", err)
			}
			return
		}

		if err := enc.Encode(event); err != nil {
			s.logger.Debug("Feed write failed, closing stream", "error", err)
			return
		}
		flusher.Flush()
	}
}

// kitchenFeedHandler serves the same event stream over a websocket for
// kitchen display clients.
func (s *Server) kitchenFeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)

	if err != nil {
		s.logger.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := s.orderService.OpenFeed(ctx)

	if err != nil {
		s.logger.Error("Failed to open kitchen feed", "error", err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed unavailable"))
		return
	}
	defer s.orderService.CloseFeed(session)

	// Read pump: the client sends nothing meaningful, but reading is the
	// only way to notice it went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		event, err := session.Next(ctx)

		if err != nil {
			if errors.Is(err, broadcast.ErrSessionClosed) {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			}
			return
		}

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			s.logger.Debug("Kitchen feed write failed, closing", "error", err)
			return
		}
	}
}
