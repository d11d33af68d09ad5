// ABOUTME: SSE endpoint streaming change events for one store's message log
// ABOUTME: Identity-only events; clients re-fetch through the policy-gated API

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/storemap/courier/internal/auth"
	"github.com/storemap/courier/internal/notify"
)

// handleEvents handles GET /api/stores/{id}/events.
// It streams ChangeEvents for the store as Server-Sent Events until the
// client disconnects. Events carry message identity only; the client is
// expected to re-fetch the thread or conversation list on receipt.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.writeError(w, http.StatusInternalServerError, "streaming not supported", false)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{"store_id": storeID, "subscription_id": subID})
	flusher.Flush()

	g.logger.Debug("event stream opened", "store_id", storeID, "viewer_id", viewerID, "sub_id", subID)
	g.streamEvents(r, w, flusher, events)
	g.logger.Debug("event stream closed", "store_id", storeID, "sub_id", subID)
}

// streamEvents forwards change events to the SSE response, interleaving
// heartbeats so intermediaries keep the connection open.
func (g *Gateway) streamEvents(r *http.Request, w http.ResponseWriter, flusher http.Flusher, events <-chan notify.ChangeEvent) {
	heartbeat := time.NewTicker(g.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			// SSE comment line, ignored by clients but keeps the pipe warm
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case event, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(event.Kind), event)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
