package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API already answers cross-origin requests.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// streamEventsWS delivers the same replay-then-live event stream as the
// SSE endpoint over a WebSocket. Each event is one JSON text message;
// the connection closes after the terminal event.
func (s *Server) streamEventsWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	history, sub, err := s.streamer.Subscribe(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: surface client disconnects while we only write.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeEvent := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	for _, ev := range history {
		if !writeEvent(ev) {
			return
		}
	}

	for {
		select {
		case <-disconnected:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			if !writeEvent(ev) {
				return
			}
		}
	}
}
