package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	apperrors "ddnet-tracker/internal/errors"
	"ddnet-tracker/internal/logging"
)

// ClientMessage is what live feed clients may send: "ping" or "refresh".
type ClientMessage struct {
	Type string `json:"type"`
}

const liveWriteTimeout = 10 * time.Second

// liveHandler upgrades to a websocket and pushes the user's tracked player
// status immediately, every poll interval and whenever the user's list
// changes, until either side closes.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	// The feed outlives the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.DebugContext(r.Context(), "Could not clear write deadline", logging.Err(err))
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins()),
	})
	if err != nil {
		slog.WarnContext(r.Context(), "Failed to open websocket", logging.Err(err))
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	connectionID := uuid.New().String()
	ctx, cancel := context.WithCancel(logging.With(r.Context(), logging.ConnectionID(connectionID)))
	defer cancel()

	refresh := s.connectionManager.AddConnection(connectionID, user.ID, socket)
	s.authMetrics.LiveConnections.Inc()
	slog.InfoContext(ctx, "Live feed connected")
	defer func() {
		s.connectionManager.RemoveConnection(connectionID)
		s.authMetrics.LiveConnections.Dec()
		slog.InfoContext(ctx, "Live feed closed")
	}()

	incoming := make(chan ClientMessage, 4)
	go s.readLiveMessages(ctx, cancel, socket, incoming)

	ticker := s.clock.NewTicker(s.cfg.LivePollInterval)
	defer ticker.Stop()

	if err := s.pushStatus(ctx, socket, user.ID); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.pushStatus(ctx, socket, user.ID); err != nil {
				return
			}
		case <-refresh:
			if err := s.pushStatus(ctx, socket, user.ID); err != nil {
				return
			}
		case msg := <-incoming:
			switch msg.Type {
			case "ping":
				err = s.writeLive(ctx, socket, LiveMessage{Type: "pong", CheckedAt: s.clock.Now().UTC()})
			case "refresh":
				err = s.pushStatus(ctx, socket, user.ID)
			default:
				err = s.writeLive(ctx, socket, LiveMessage{Type: "error", Message: "Unknown message type: " + msg.Type, CheckedAt: s.clock.Now().UTC()})
			}
			if err != nil {
				return
			}
		}
	}
}

// readLiveMessages forwards client messages and cancels the feed when the
// socket closes.
func (s *Server) readLiveMessages(ctx context.Context, cancel context.CancelFunc, socket *websocket.Conn, out chan<- ClientMessage) {
	defer cancel()
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, socket, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.DebugContext(ctx, "Live feed read error", logging.Err(err))
			}
			return
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// pushStatus sends the current status. Lookup failures are reported to the
// client and keep the feed open; write failures end it.
func (s *Server) pushStatus(ctx context.Context, socket *websocket.Conn, userID uuid.UUID) error {
	now := s.clock.Now().UTC()

	statuses, err := s.tracker.OnlineStatus(ctx, userID)
	if err != nil {
		appErr := toAppError(err)
		slog.WarnContext(ctx, "Live feed status lookup failed", logging.Err(err))
		return s.writeLive(ctx, socket, LiveMessage{Type: "error", Message: appErr.Message, CheckedAt: now})
	}

	return s.writeLive(ctx, socket, LiveMessage{Type: "status", Players: statuses, CheckedAt: now})
}

func (s *Server) writeLive(ctx context.Context, socket *websocket.Conn, msg LiveMessage) error {
	ctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, socket, msg); err != nil {
		return apperrors.InternalError("failed to write live message", err)
	}
	return nil
}

// originPatterns turns configured origins into the host patterns websocket
// Accept matches against. Same-host requests are always accepted.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
