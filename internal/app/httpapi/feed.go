package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware ahead of the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type feedEventDTO struct {
	Type   string       `json:"type"`
	Record operationDTO `json:"record"`
	At     time.Time    `json:"at"`
}

// feed streams operation status events over a websocket, scoped to the
// caller's project.
func (h *handler) feed(w http.ResponseWriter, r *http.Request) {
	project := projectID(r)

	conn, err := feedUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("feed upgrade failed")
		return
	}
	events, cancel := h.app.Operations.Feed().Subscribe()
	defer cancel()
	defer conn.Close()

	// Reader drains control frames and signals the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if project != "" && event.Record.ProjectID != "" && event.Record.ProjectID != project {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(feedEventDTO{
				Type:   event.Type,
				Record: operationDTOFrom(event.Record),
				At:     event.At,
			}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
