// ABOUTME: In-memory fan-out broadcaster for message-log change events
// ABOUTME: Publishes ChangeEvents to all subscribers of a store's message stream

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// ChangeKind identifies what happened to the message log
type ChangeKind string

const (
	// KindMessageCreated signals a new message was appended
	KindMessageCreated ChangeKind = "message_created"
	// KindMessageRead signals a read-flag flip on an existing message
	KindMessageRead ChangeKind = "message_read"
)

// ChangeEvent notifies subscribers that a store's message log changed.
// It carries identity only, never the message body: subscribers re-run
// the authoritative read path instead of trusting a pushed payload, so
// the notifier can never diverge from the source of truth.
type ChangeEvent struct {
	StoreID    string     `json:"store_id"`
	UserID     string     `json:"user_id"`
	MessageID  string     `json:"message_id"`
	Kind       ChangeKind `json:"kind"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Broadcaster provides in-memory pub/sub for message-log changes.
// Subscribers register for one store's stream (a customer watching their
// thread, or an owner watching the inbox) and receive a ChangeEvent for
// any insert or read-flag update touching that store. Delivery is
// at-least-once and advisory: ordering is re-established at read time.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan ChangeEvent // storeID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan ChangeEvent),
		logger:      logger.With("component", "notify"),
	}
}

// Subscribe registers a subscriber for change events on the given store.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx
// is cancelled, so a subscription never outlives the view that opened it.
func (b *Broadcaster) Subscribe(ctx context.Context, storeID string) (<-chan ChangeEvent, string) {
	subID := uuid.New().String()
	ch := make(chan ChangeEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[storeID]; !ok {
		b.subscribers[storeID] = make(map[string]chan ChangeEvent)
	}
	b.subscribers[storeID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "store_id", storeID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(storeID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the event's store.
// Non-blocking: events are dropped for subscribers whose channels are
// full, so one slow consumer never serializes fan-out for the rest.
// Sends happen under the read lock. They never block, and channels are
// only closed under the write lock, so a concurrent Unsubscribe or
// Close can never turn a send into a panic.
func (b *Broadcaster) Publish(event ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.StoreID] {
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full, drop the event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"store_id", event.StoreID,
				"message_id", event.MessageID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(storeID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[storeID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty store entries
	if len(subs) == 0 {
		delete(b.subscribers, storeID)
	}

	b.logger.Debug("subscriber removed", "store_id", storeID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for storeID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, storeID)
	}

	b.logger.Debug("broadcaster closed")
}
