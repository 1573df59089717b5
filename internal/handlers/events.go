package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reelmatch/backend/internal/eventbus"
	"github.com/reelmatch/backend/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients connect from arbitrary devices on the local network.
	CheckOrigin: func(*http.Request) bool { return true },
}

// EventHandler streams session events over a WebSocket.
type EventHandler struct {
	Coordinator SessionCoordinator
	Stream      EventStream
}

// Serve handles GET /api/v1/sessions/{id}/events. Each connection gets its
// own subscription; a dropped connection never blocks publishers.
func (h EventHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	session, err := h.Coordinator.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "sessionId", session.ID, "error", err)
		return
	}

	sub := h.Stream.Subscribe(session.ID)
	logger.Info("event stream opened", "sessionId", session.ID)

	go h.readLoop(conn, sub)
	h.writeLoop(conn, sub)

	logger.Info("event stream closed", "sessionId", session.ID)
}

// readLoop drains and discards client frames so pong handling works, and
// tears down the subscription when the peer goes away.
func (h EventHandler) readLoop(conn *websocket.Conn, sub *eventbus.Subscriber) {
	defer h.Stream.Unsubscribe(sub)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h EventHandler) writeLoop(conn *websocket.Conn, sub *eventbus.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
