// ABOUTME: Tests for the HTTP API endpoints end to end
// ABOUTME: Drives the full handler stack with a real SQLite store and JWT auth

package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storemap/courier/internal/auth"
	"github.com/storemap/courier/internal/config"
	"github.com/storemap/courier/internal/store"
)

const testSecret = "test-secret"

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	cfg := &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "courier.db")},
		Auth:     config.AuthConfig{JWTSecret: testSecret},
		Events:   config.EventsConfig{HeartbeatInterval: 50 * time.Millisecond},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		gw.notifier.Close()
		_ = gw.store.Close()
	})
	return gw
}

// seedDirectory creates a store owned by "owner-1" plus two customers.
func seedDirectory(t *testing.T, gw *Gateway) {
	t.Helper()
	ctx := t.Context()

	require.NoError(t, gw.store.CreateUser(ctx, &store.User{ID: "owner-1", DisplayName: "Pat the Grocer"}))
	require.NoError(t, gw.store.CreateUser(ctx, &store.User{ID: "cust-1", DisplayName: "Alice"}))
	require.NoError(t, gw.store.CreateUser(ctx, &store.User{ID: "cust-2", DisplayName: "Bob"}))
	require.NoError(t, gw.store.CreateStore(ctx, &store.Store{ID: "store-1", Name: "Corner Grocery", OwnerID: "owner-1"}))
}

func tokenFor(t *testing.T, viewerID string) string {
	t.Helper()
	token, err := auth.NewJWTVerifier([]byte(testSecret)).Generate(viewerID, time.Hour)
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, gw *Gateway, method, path, viewerID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if viewerID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, viewerID))
	}
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func sendMessage(t *testing.T, gw *Gateway, viewerID string, req SendMessageRequest) MessageResponse {
	t.Helper()
	rec := doRequest(t, gw, http.MethodPost, "/api/messages", viewerID, req)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var msg MessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	return msg
}

func TestAPI_RequiresAuth(t *testing.T) {
	gw := newTestGateway(t)

	rec := doRequest(t, gw, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_Health(t *testing.T) {
	gw := newTestGateway(t)

	rec := doRequest(t, gw, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_CustomerSendsAndReadsThread(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	// Customer sends without naming user_id; it defaults to themselves
	msg := sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1",
		Role:    "customer",
		Body:    "Do you have oat milk?",
	})
	assert.Equal(t, "store-1", msg.StoreID)
	assert.Equal(t, "cust-1", msg.UserID)
	assert.False(t, msg.IsRead)

	rec := doRequest(t, gw, http.MethodGet, "/api/stores/store-1/thread", "cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var thread ThreadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&thread))
	assert.Equal(t, "cust-1", thread.UserID)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "Do you have oat milk?", thread.Messages[0].Body)
}

func TestAPI_OwnerRepliesIntoThread(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "Hello?",
	})

	reply := sendMessage(t, gw, "owner-1", SendMessageRequest{
		StoreID: "store-1", UserID: "cust-1", Role: "owner", Body: "Hi Alice!",
	})
	// The reply stays keyed by the customer side of the thread
	assert.Equal(t, "cust-1", reply.UserID)
	assert.Equal(t, "owner", reply.Role)

	rec := doRequest(t, gw, http.MethodGet, "/api/stores/store-1/thread?user_id=cust-1", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var thread ThreadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&thread))
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "Hello?", thread.Messages[0].Body)
	assert.Equal(t, "Hi Alice!", thread.Messages[1].Body)
}

func TestAPI_OwnerReplyWithoutThreadIs400(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	rec := doRequest(t, gw, http.MethodPost, "/api/messages", "owner-1", SendMessageRequest{
		StoreID: "store-1", UserID: "cust-2", Role: "owner", Body: "Come buy things",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.False(t, errResp.Retryable)
}

func TestAPI_OwnerReplyWithoutTargetIs400(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	rec := doRequest(t, gw, http.MethodPost, "/api/messages", "owner-1", SendMessageRequest{
		StoreID: "store-1", Role: "owner", Body: "To whom?",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_OwnerThreadReadWithoutUserIDIs400(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "Hello?",
	})

	// The viewer default is for customers only; an owner omitting the
	// customer would otherwise read an empty (store, owner) thread.
	rec := doRequest(t, gw, http.MethodGet, "/api/stores/store-1/thread", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.False(t, errResp.Retryable)
}

func TestAPI_StrangerCannotReadThread(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "private question",
	})

	// Explicit denial, not an empty thread
	rec := doRequest(t, gw, http.MethodGet, "/api/stores/store-1/thread?user_id=cust-1", "cust-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_ImpostorSendIs403(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	rec := doRequest(t, gw, http.MethodPost, "/api/messages", "cust-2", SendMessageRequest{
		StoreID: "store-1", UserID: "cust-1", Role: "customer", Body: "pretending to be alice",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, gw, http.MethodPost, "/api/messages", "cust-2", SendMessageRequest{
		StoreID: "store-1", UserID: "cust-2", Role: "owner", Body: "pretending to be the owner",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_EmptyBodyIs400(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	rec := doRequest(t, gw, http.MethodPost, "/api/messages", "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Conversations(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "first",
	})
	sendMessage(t, gw, "cust-2", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "second",
	})

	// Owner sees one summary per customer thread, newest first
	rec := doRequest(t, gw, http.MethodGet, "/api/conversations", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 2)

	assert.Equal(t, "cust-2", resp.Conversations[0].CounterpartID)
	assert.Equal(t, "Bob", resp.Conversations[0].CounterpartName)
	assert.Equal(t, 1, resp.Conversations[0].UnreadCount)
	assert.True(t, resp.Conversations[0].IsOwnerView)
	assert.Equal(t, "cust-1", resp.Conversations[1].CounterpartID)

	// The customer sees a single summary named after the store
	rec = doRequest(t, gw, http.MethodGet, "/api/conversations", "cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp = ConversationsResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "store-1", resp.Conversations[0].CounterpartID)
	assert.Equal(t, "Corner Grocery", resp.Conversations[0].CounterpartName)
	assert.True(t, resp.Conversations[0].LastSenderIsViewer)
	assert.Equal(t, 0, resp.Conversations[0].UnreadCount)
}

func TestAPI_MarkRead(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	msg := sendMessage(t, gw, "cust-1", SendMessageRequest{
		StoreID: "store-1", Role: "customer", Body: "anyone there?",
	})

	// The sender cannot mark their own message read
	rec := doRequest(t, gw, http.MethodPost, "/api/messages/"+msg.ID+"/read", "cust-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The owner, as recipient, can
	rec = doRequest(t, gw, http.MethodPost, "/api/messages/"+msg.ID+"/read", "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, gw, http.MethodGet, "/api/conversations", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConversationsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, 0, resp.Conversations[0].UnreadCount)
}

func TestAPI_MarkReadUnknownMessageIs404(t *testing.T) {
	gw := newTestGateway(t)
	seedDirectory(t, gw)

	rec := doRequest(t, gw, http.MethodPost, "/api/messages/no-such-id/read", "owner-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_InvalidJSONIs400(t *testing.T) {
	gw := newTestGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "cust-1"))
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
