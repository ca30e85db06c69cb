package eventstream

import (
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/onnwee/dwnd/internal/dwnmodel"
)

// WSTransport adapts a Hub subscription onto a websocket connection. It is
// one concrete subscriber transport over Hub's transport-free core
// interface — nothing in hub.go imports gorilla/websocket — grounded on
// the teacher's internal/stream.EventBroadcaster, which wrote events
// straight to *websocket.Conn; here the broadcaster itself (Hub) stays
// transport-free and only this adapter speaks websocket.
type WSTransport struct {
	Hub    *Hub
	Logger *slog.Logger
}

// wireNotification is the JSON shape written to the socket.
type wireNotification struct {
	Tenant     string `json:"tenant"`
	MessageCID string `json:"messageCid"`
	RecordID   string `json:"recordId"`
	Lagged     int    `json:"lagged,omitempty"`
}

// Serve subscribes tenant/filters against t.Hub and forwards notifications
// to conn until the connection closes or the caller's context is done via
// conn's own read loop returning an error (gorilla/websocket has no
// separate close signal; a failed/closed Read is the only portable
// indicator, so Serve runs one to detect it). Serve blocks until the
// subscription ends and always cancels it before returning.
func (t *WSTransport) Serve(conn *websocket.Conn, tenant string, filters []dwnmodel.FilterSet) {
	ch, cancel := t.Hub.Subscribe(tenant, filters)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(wireNotification{
				Tenant:     n.Tenant,
				MessageCID: n.MessageCID,
				RecordID:   n.RecordID,
				Lagged:     n.Lagged,
			})
			if err != nil {
				logger.Error("eventstream: marshal notification", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn("eventstream: write to websocket client failed", "error", err, "tenant", tenant)
				return
			}
		case <-closed:
			return
		}
	}
}
