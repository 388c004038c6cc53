package builderapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bitechdev/StrapiSpec/pkg/logger"
	"github.com/bitechdev/StrapiSpec/pkg/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Watch streams the compiled query of a session over a websocket. The current
// state is sent right after the upgrade, then one message per change. The
// stream ends when the session is deleted or the client goes away.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// subscribe before reading the snapshot so no change falls in between
	updates, cancel := h.sessions.Watch(id)
	defer cancel()

	s, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Failed to upgrade watch connection for session %s: %v", id, err)
		return
	}
	defer ws.Close()

	logger.Debug("Watcher connected to session %s", id)

	done := make(chan struct{})
	go readPump(ws, done)

	if err := writeUpdate(ws, session.NewUpdate(s)); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := writeUpdate(ws, u); err != nil {
				logger.Debug("Watcher of session %s write failed: %v", id, err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			logger.Debug("Watcher disconnected from session %s", id)
			return
		}
	}
}

func writeUpdate(ws *websocket.Conn, u session.Update) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(u)
}

// readPump discards client messages and closes done once the peer is gone.
// It keeps the read deadline moving on every pong.
func readPump(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("Watch connection read error: %v", err)
			}
			return
		}
	}
}
