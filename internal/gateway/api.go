// ABOUTME: HTTP API handlers for the courier messaging endpoints
// ABOUTME: Maps service errors onto JSON error responses with stable status codes

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/storemap/courier/internal/access"
	"github.com/storemap/courier/internal/auth"
	"github.com/storemap/courier/internal/conversation"
	"github.com/storemap/courier/internal/store"
)

// SendMessageRequest is the JSON request body for POST /api/messages.
type SendMessageRequest struct {
	StoreID string `json:"store_id"`
	// UserID names the customer side of the thread. Customers may omit it
	// to default to themselves; owner replies must set it.
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role"`
	Body   string `json:"body"`
}

// MessageResponse is the JSON shape of one message.
type MessageResponse struct {
	ID        string `json:"id"`
	StoreID   string `json:"store_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Body      string `json:"body"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// ThreadResponse is the JSON response for GET /api/stores/{id}/thread.
type ThreadResponse struct {
	StoreID  string            `json:"store_id"`
	UserID   string            `json:"user_id"`
	Messages []MessageResponse `json:"messages"`
}

// SummaryResponse is the JSON shape of one conversation summary.
type SummaryResponse struct {
	StoreID            string `json:"store_id"`
	CounterpartID      string `json:"counterpart_id"`
	CounterpartName    string `json:"counterpart_name"`
	LastMessage        string `json:"last_message"`
	LastMessageID      string `json:"last_message_id"`
	LastMessageTime    string `json:"last_message_time"`
	UnreadCount        int    `json:"unread_count"`
	IsOwnerView        bool   `json:"is_owner_view"`
	LastSenderIsViewer bool   `json:"last_sender_is_viewer"`
}

// ConversationsResponse is the JSON response for GET /api/conversations.
type ConversationsResponse struct {
	Conversations []SummaryResponse `json:"conversations"`
}

// ErrorResponse is the JSON error body. Retryable marks transient
// failures the client may retry; policy and validation failures are
// final and marked accordingly.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func messageToResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		StoreID:   m.StoreID,
		UserID:    m.UserID,
		Role:      string(m.Role),
		Body:      m.Body,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
	}
}

func summaryToResponse(s *conversation.Summary) SummaryResponse {
	return SummaryResponse{
		StoreID:            s.StoreID,
		CounterpartID:      s.CounterpartID,
		CounterpartName:    s.CounterpartName,
		LastMessage:        s.LastMessage,
		LastMessageID:      s.LastMessageID,
		LastMessageTime:    s.LastMessageTime.Format(time.RFC3339Nano),
		UnreadCount:        s.UnreadCount,
		IsOwnerView:        s.IsOwnerView,
		LastSenderIsViewer: s.LastSenderIsViewer,
	}
}

// handleConversations handles GET /api/conversations.
// Returns the authenticated viewer's conversation summaries, newest
// thread first.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.ViewerFromContext(r.Context())

	summaries, err := g.conversation.GetConversations(r.Context(), viewerID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	resp := ConversationsResponse{Conversations: make([]SummaryResponse, 0, len(summaries))}
	for _, s := range summaries {
		resp.Conversations = append(resp.Conversations, summaryToResponse(s))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleThread handles GET /api/stores/{id}/thread?user_id=U.
// Customers may omit user_id to read their own thread; owners must name
// the customer thread they want.
func (g *Gateway) handleThread(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.ViewerFromContext(r.Context())
	storeID := r.PathValue("id")

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		// Only customers get the default. An owner reading their own
		// (store, owner) pseudo-thread would silently see nothing, so
		// owners must name the customer.
		owner, err := g.store.GetStoreOwner(r.Context(), storeID)
		if err != nil {
			g.writeServiceError(w, err)
			return
		}
		if owner == viewerID {
			g.writeServiceError(w, conversation.ErrMissingTarget)
			return
		}
		userID = viewerID
	}

	msgs, err := g.conversation.GetThread(r.Context(), storeID, userID, viewerID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	resp := ThreadResponse{
		StoreID:  storeID,
		UserID:   userID,
		Messages: make([]MessageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, messageToResponse(m))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleSendMessage handles POST /api/messages.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.ViewerFromContext(r.Context())

	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error(), false)
		return
	}

	targetUserID := req.UserID
	if targetUserID == "" && store.SenderRole(req.Role) == store.RoleCustomer {
		targetUserID = viewerID
	}

	msg, err := g.conversation.Send(r.Context(), &conversation.SendRequest{
		StoreID:      req.StoreID,
		TargetUserID: targetUserID,
		Role:         store.SenderRole(req.Role),
		Body:         req.Body,
		ViewerID:     viewerID,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, messageToResponse(msg))
}

// handleMarkRead handles POST /api/messages/{id}/read.
func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	viewerID := auth.ViewerFromContext(r.Context())
	messageID := r.PathValue("id")

	if err := g.conversation.MarkRead(r.Context(), messageID, viewerID); err != nil {
		g.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseSendRequest parses and validates a SendMessageRequest from the
// given reader. Field-level validation stays in the service; this only
// rejects bodies that are not JSON at all.
func parseSendRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.StoreID == "" {
		return nil, errors.New("store_id is required")
	}
	return &req, nil
}

// writeServiceError maps service-layer errors onto HTTP status codes.
// Policy denials are 403, validation failures 400, missing records 404.
// Anything else is a transient storage failure reported as 502 so the
// client knows a retry may succeed.
func (g *Gateway) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrForbidden):
		g.writeError(w, http.StatusForbidden, "forbidden", false)
	case errors.Is(err, store.ErrEmptyBody),
		errors.Is(err, store.ErrInvalidRole),
		errors.Is(err, conversation.ErrMissingTarget),
		errors.Is(err, conversation.ErrNoThread):
		g.writeError(w, http.StatusBadRequest, err.Error(), false)
	case errors.Is(err, store.ErrNotFound):
		g.writeError(w, http.StatusNotFound, "not found", false)
	default:
		g.logger.Error("request failed", "error", err)
		g.writeError(w, http.StatusBadGateway, "temporarily unavailable", true)
	}
}

// writeError writes a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, status int, message string, retryable bool) {
	g.writeJSON(w, status, ErrorResponse{Error: message, Retryable: retryable})
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}
