// ABOUTME: WebSocket endpoint mirroring the SSE change feed
// ABOUTME: Same identity-only events, for clients that prefer a socket

package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/storemap/courier/internal/auth"
	"github.com/storemap/courier/internal/notify"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 15 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS handles GET /api/stores/{id}/ws.
// It pushes the same ChangeEvents as the SSE endpoint over a WebSocket.
// Inbound frames are drained and discarded; all writes go through the
// HTTP API so the socket stays a pure notification channel.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.ViewerFromContext(r.Context())
	storeID := r.PathValue("id")

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = viewerID
	}

	events, subID, err := g.conversation.Subscribe(r.Context(), storeID, userID, viewerID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "store_id", storeID, "error", err)
		return
	}
	defer conn.Close()

	g.logger.Debug("websocket opened", "store_id", storeID, "viewer_id", viewerID, "sub_id", subID)

	// Reader goroutine: drain inbound frames so control messages are
	// processed, and signal when the peer goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1 << 10)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-done:
			return

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}

		case event, ok := <-events:
			if !ok {
				return
			}
			if err := g.writeWSEvent(conn, event); err != nil {
				g.logger.Debug("websocket write failed", "store_id", storeID, "error", err)
				return
			}
		}
	}
}

func (g *Gateway) writeWSEvent(conn *websocket.Conn, event notify.ChangeEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}
