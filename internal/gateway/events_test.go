// ABOUTME: Tests for the SSE change feed endpoint
// ABOUTME: Verifies subscription gating, event delivery, and heartbeats

package gateway

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readSSEEvent reads lines until one full "event:"/"data:" pair arrives.
func readSSEEvent(t *testing.T, reader *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestEvents_StreamsChangeEvents(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/stores/store-1/events?access_token="+tokenFor(t, "owner-1"), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	event, data := readSSEEvent(t, reader)
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, "store-1")

	// A customer send shows up on the owner's stream as identity only
	msg := sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "fresh bread today?",
	})

	event, data = readSSEEvent(t, reader)
	assert.Equal(t, "message_created", event)
	assert.Contains(t, data, msg.ID)
	assert.NotContains(t, data, "fresh bread today?")

	// Read-flag flips stream too
	rec := doRequest(t, gw, http.MethodPost, "/api/messages/"+msg.ID+"/read", "owner-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	event, data = readSSEEvent(t, reader)
	assert.Equal(t, "message_read", event)
	assert.Contains(t, data, msg.ID)
}

func TestEvents_StrangerIsForbidden(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "hi",
	})

	rec := doRequest(t, gw, http.MethodGet, "/api/stores/store-1/events?user_id=cust-1", "cust-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEvents_HeartbeatKeepsStreamAlive(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/stores/store-1/events?access_token="+tokenFor(t, "owner-1"), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	// Skip the connected event, then expect a heartbeat comment line
	readSSEEvent(t, reader)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": heartbeat") {
			return
		}
	}
	t.Fatal("no heartbeat received")
}
