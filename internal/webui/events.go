package webui

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// eventInterval is how often the status is sampled for /api/events.
const eventInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same origin, other origins only get status.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var eventConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "airsane_ui_event_connections",
	Help: "Number of open status event streams",
})

// handleEvents streams statusResponse messages over a WebSocket. A message
// is sent on connect and whenever the status changes.
func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	eventConnections.Inc()
	defer eventConnections.Dec()

	// Drain client messages so close frames and pongs are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read failed", "err", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()

	var last []byte
	for {
		st := h.status()
		updatedAt := st.UpdatedAt
		st.UpdatedAt = ""
		data, err := json.Marshal(st)
		if err != nil {
			return
		}
		st.UpdatedAt = updatedAt
		if !bytes.Equal(data, last) {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(st); err != nil {
				return
			}
			last = data
		}

		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}
