package studio_publish_api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	internal_gateway "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gateway"
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type eventFrame struct {
	Type    string                            `json:"type"`
	State   string                            `json:"state,omitempty"`
	Metrics *internal_gateway.MetricsSnapshot `json:"metrics,omitempty"`
}

// Events streams lifecycle transitions and periodic metrics over a
// WebSocket until the client goes away.
func (pApi *PublishApi) Events(c *gin.Context) {
	conn, err := eventsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		pApi.logger.Errorf("WebSocket upgrade failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to upgrade to WebSocket"})
		return
	}
	defer conn.Close()

	states := make(chan internal_gateway.State, 16)
	unsubscribe := pApi.gateway.SubscribeState(func(s internal_gateway.State) {
		select {
		case states <- s:
		default:
		}
	})
	defer unsubscribe()

	// The client never sends application data; the read loop exists to
	// observe the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(eventFrame{Type: "state", State: pApi.gateway.State().String()}); err != nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case s := <-states:
			if err := conn.WriteJSON(eventFrame{Type: "state", State: s.String()}); err != nil {
				return
			}
		case <-ticker.C:
			snap := pApi.gateway.Metrics()
			if snap == nil {
				continue
			}
			if err := conn.WriteJSON(eventFrame{Type: "metrics", Metrics: snap}); err != nil {
				return
			}
		}
	}
}
