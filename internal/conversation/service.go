// ABOUTME: Service is the central layer for store-to-customer messaging
// ABOUTME: Gates every read/write through the access policy, then notifies

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storemap/courier/internal/access"
	"github.com/storemap/courier/internal/notify"
	"github.com/storemap/courier/internal/store"
)

// ErrMissingTarget is returned when a send names no target customer.
// There is no broadcast operation: an owner reply must name the one
// customer thread it belongs to, before anything touches storage.
var ErrMissingTarget = errors.New("target customer is required")

// ErrNoThread is returned when an owner tries to message a customer who
// has never written to the store. Owners reply within existing threads
// only; first contact always comes from the customer.
var ErrNoThread = errors.New("no existing thread for this customer")

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	InsertMessage(ctx context.Context, msg *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	ListThreadMessages(ctx context.Context, storeID, userID string) ([]*store.Message, error)
	ListViewerMessages(ctx context.Context, viewerID string) ([]*store.Message, error)
	MarkRead(ctx context.Context, messageID string) error

	GetStore(ctx context.Context, id string) (*store.Store, error)
	GetStoreOwner(ctx context.Context, storeID string) (string, error)
	ListOwnedStoreIDs(ctx context.Context, ownerID string) ([]string, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// Service coordinates the message log, access policy, and realtime
// notifier for the messaging subsystem.
type Service struct {
	store    ConversationStore
	policy   *access.Policy
	notifier *notify.Broadcaster
	logger   *slog.Logger
}

// New creates a conversation Service. Pass nil logger for default.
func New(st ConversationStore, policy *access.Policy, notifier *notify.Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		policy:   policy,
		notifier: notifier,
		logger:   logger.With("component", "conversation"),
	}
}

// SendRequest contains everything needed to send a message
type SendRequest struct {
	StoreID string
	// TargetUserID is the customer side of the thread. Customers send
	// with their own ID; owners must name the customer they reply to.
	TargetUserID string
	Role         store.SenderRole
	Body         string
	ViewerID     string
}

// Send validates, authorizes, and appends one message to the log, then
// publishes a change event for the store's subscribers.
//
// The append is the whole write: the thread is derived from the log, so
// there is no separate "create conversation" step that could half-commit.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*store.Message, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, store.ErrEmptyBody
	}
	if req.TargetUserID == "" {
		return nil, ErrMissingTarget
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidRole, req.Role)
	}

	if err := s.policy.CanWrite(ctx, req.ViewerID, req.StoreID, req.TargetUserID, req.Role); err != nil {
		return nil, err
	}

	// Owners only reply within threads the customer opened
	if req.Role == store.RoleOwner {
		existing, err := s.store.ListThreadMessages(ctx, req.StoreID, req.TargetUserID)
		if err != nil {
			return nil, fmt.Errorf("checking thread: %w", err)
		}
		if len(existing) == 0 {
			return nil, fmt.Errorf("%w: store %s, customer %s", ErrNoThread, req.StoreID, req.TargetUserID)
		}
	}

	msg := &store.Message{
		ID:      uuid.New().String(),
		StoreID: req.StoreID,
		UserID:  req.TargetUserID,
		Role:    req.Role,
		Body:    req.Body,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}

	s.logger.Debug("message sent",
		"message_id", msg.ID,
		"store_id", msg.StoreID,
		"user_id", msg.UserID,
		"role", msg.Role)

	s.publish(notify.ChangeEvent{
		StoreID:    msg.StoreID,
		UserID:     msg.UserID,
		MessageID:  msg.ID,
		Kind:       notify.KindMessageCreated,
		OccurredAt: msg.CreatedAt,
	})

	return msg, nil
}

// GetThread returns the messages of one thread in chronological order.
// Viewers outside the thread get access.ErrForbidden, never an empty
// result.
func (s *Service) GetThread(ctx context.Context, storeID, userID, viewerID string) ([]*store.Message, error) {
	if err := s.policy.CanRead(ctx, viewerID, storeID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListThreadMessages(ctx, storeID, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching thread: %w", err)
	}
	return msgs, nil
}

// GetConversations returns the viewer's conversation summaries, newest
// thread first: one row per customer thread for stores the viewer owns,
// one row per store the viewer has messaged as a customer.
//
// A failed fetch is reported as an error; it is never passed off as an
// empty-but-successful result.
func (s *Service) GetConversations(ctx context.Context, viewerID string) ([]*Summary, error) {
	ownedIDs, err := s.store.ListOwnedStoreIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("resolving owned stores: %w", err)
	}

	msgs, err := s.store.ListViewerMessages(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	viewer := NewViewer(viewerID, ownedIDs)
	summaries := Aggregate(viewer, msgs)

	for _, summary := range summaries {
		summary.CounterpartName = s.counterpartName(ctx, summary)
	}

	return summaries, nil
}

// counterpartName resolves the display identity of the other side.
// Lookup failures fall back to the raw ID rather than failing the whole
// aggregation.
func (s *Service) counterpartName(ctx context.Context, summary *Summary) string {
	if summary.IsOwnerView {
		u, err := s.store.GetUser(ctx, summary.CounterpartID)
		if err != nil {
			s.logger.Debug("counterpart user lookup failed", "user_id", summary.CounterpartID, "error", err)
			return summary.CounterpartID
		}
		return u.DisplayName
	}

	st, err := s.store.GetStore(ctx, summary.StoreID)
	if err != nil {
		s.logger.Debug("counterpart store lookup failed", "store_id", summary.StoreID, "error", err)
		return summary.CounterpartID
	}
	return st.Name
}

// MarkRead flips the read flag on one message on behalf of the viewer.
// Only the recipient side may mark a message read: the customer for an
// owner-authored message, the owner for a customer-authored one.
func (s *Service) MarkRead(ctx context.Context, messageID, viewerID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if err := s.policy.CanRead(ctx, viewerID, msg.StoreID, msg.UserID); err != nil {
		return err
	}

	owner, err := s.store.GetStoreOwner(ctx, msg.StoreID)
	if err != nil {
		return fmt.Errorf("resolving store owner: %w", err)
	}

	viewerRole := store.RoleCustomer
	if viewerID == owner {
		viewerRole = store.RoleOwner
	}
	if msg.Role == viewerRole {
		return fmt.Errorf("%w: sender cannot mark own message read", access.ErrForbidden)
	}

	if err := s.store.MarkRead(ctx, messageID); err != nil {
		return err
	}

	s.logger.Debug("message marked read", "message_id", messageID, "viewer_id", viewerID)

	s.publish(notify.ChangeEvent{
		StoreID:    msg.StoreID,
		UserID:     msg.UserID,
		MessageID:  messageID,
		Kind:       notify.KindMessageRead,
		OccurredAt: time.Now().UTC(),
	})

	return nil
}

// Subscribe registers for change events on one store's message stream,
// after checking the viewer may read the named thread. Owners pass their
// own ID as userID to watch the whole store inbox.
func (s *Service) Subscribe(ctx context.Context, storeID, userID, viewerID string) (<-chan notify.ChangeEvent, string, error) {
	if err := s.policy.CanRead(ctx, viewerID, storeID, userID); err != nil {
		return nil, "", err
	}
	ch, subID := s.notifier.Subscribe(ctx, storeID)
	return ch, subID, nil
}

func (s *Service) publish(event notify.ChangeEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(event)
}
