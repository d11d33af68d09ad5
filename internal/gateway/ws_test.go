// ABOUTME: Tests for the WebSocket change feed endpoint
// ABOUTME: Verifies upgrade, event delivery, and access gating

package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storemap/courier/internal/notify"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWS_StreamsChangeEvents(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "/api/stores/store-1/ws?access_token="+tokenFor(t, "owner-1")), nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	msg := sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "is the shop open?",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var event notify.ChangeEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, notify.KindMessageCreated, event.Kind)
	assert.Equal(t, "store-1", event.StoreID)
	assert.Equal(t, "cust-1", event.UserID)
	assert.Equal(t, msg.ID, event.MessageID)
}

func TestWS_StrangerIsForbidden(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "hi",
	})

	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "/api/stores/store-1/ws?user_id=cust-1&access_token="+tokenFor(t, "cust-2")), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
