// ABOUTME: Tests for the change-event fan-out broadcaster
// ABOUTME: Covers subscribe, publish, unsubscribe, context cancellation, concurrency

package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvent(msgID, storeID string) ChangeEvent {
	return ChangeEvent{
		StoreID:    storeID,
		UserID:     "cust-1",
		MessageID:  msgID,
		Kind:       KindMessageCreated,
		OccurredAt: time.Now(),
	}
}

func TestBroadcaster_SingleSubscriberReceivesEvent(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()

	ch, _ := b.Subscribe(ctx, "store-1")

	b.Publish(makeEvent("msg-1", "store-1"))

	select {
	case received := <-ch:
		assert.Equal(t, "msg-1", received.MessageID)
		assert.Equal(t, KindMessageCreated, received.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_MultipleSubscribersReceiveSameEvent(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()

	ch1, _ := b.Subscribe(ctx, "store-1")
	ch2, _ := b.Subscribe(ctx, "store-1")
	ch3, _ := b.Subscribe(ctx, "store-1")

	b.Publish(makeEvent("msg-2", "store-1"))

	for i, ch := range []<-chan ChangeEvent{ch1, ch2, ch3} {
		select {
		case received := <-ch:
			assert.Equal(t, "msg-2", received.MessageID, "subscriber %d got wrong event", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_DifferentStoresAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()

	ch1, _ := b.Subscribe(ctx, "store-1")
	ch2, _ := b.Subscribe(ctx, "store-2")

	b.Publish(makeEvent("msg-3", "store-1"))

	// ch1 should receive the event
	select {
	case received := <-ch1:
		assert.Equal(t, "msg-3", received.MessageID)
	case <-time.After(time.Second):
		t.Fatal("subscriber for store-1 timed out")
	}

	// ch2 should NOT receive anything
	select {
	case <-ch2:
		t.Fatal("subscriber for store-2 should not receive events for store-1")
	case <-time.After(100 * time.Millisecond):
		// Expected: no event
	}
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()

	// Subscribe but never read from ch1 (slow consumer)
	_, _ = b.Subscribe(ctx, "store-1")
	ch2, _ := b.Subscribe(ctx, "store-1")

	// Publish more events than the buffer size to overflow ch1
	for i := range 100 {
		b.Publish(makeEvent("msg-overflow-"+string(rune('0'+i%10)), "store-1"))
	}

	// ch2 should still receive events (publisher wasn't blocked)
	receivedCount := 0
	for {
		select {
		case <-ch2:
			receivedCount++
		case <-time.After(200 * time.Millisecond):
			goto done
		}
	}
done:
	assert.Greater(t, receivedCount, 0, "fast consumer should receive at least some events")
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, subID := b.Subscribe(ctx, "store-1")

	// Verify subscription exists
	b.mu.RLock()
	_, exists := b.subscribers["store-1"][subID]
	b.mu.RUnlock()
	assert.True(t, exists, "subscription should exist before cancel")

	// Cancel the context
	cancel()

	// Give cleanup goroutine time to run
	time.Sleep(50 * time.Millisecond)

	// Subscription should be cleaned up
	b.mu.RLock()
	subs, storeExists := b.subscribers["store-1"]
	if storeExists {
		_, subExists := subs[subID]
		assert.False(t, subExists, "subscription should be removed after context cancel")
	}
	b.mu.RUnlock()

	// Channel should be closed
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestBroadcaster_ManualUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()

	ch, subID := b.Subscribe(ctx, "store-1")

	b.Unsubscribe("store-1", subID)

	// Channel should be closed
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Publishing should not panic
	b.Publish(makeEvent("msg-after-unsub", "store-1"))
}

func TestBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := NewBroadcaster(nil)

	ctx1 := t.Context()
	ctx2 := t.Context()

	ch1, _ := b.Subscribe(ctx1, "store-1")
	ch2, _ := b.Subscribe(ctx2, "store-2")

	b.Close()

	// Both channels should be closed
	for i, ch := range []<-chan ChangeEvent{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after Close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after Close()", i)
		}
	}
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	ctx := t.Context()

	// Spawn concurrent subscribers
	for range 10 {
		wg.Go(func() {
			ch, _ := b.Subscribe(ctx, "store-concurrent")
			// Read a few events then exit
			for range 5 {
				select {
				case <-ch:
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		})
	}

	// Spawn concurrent publishers
	for range 10 {
		wg.Go(func() {
			for range 10 {
				b.Publish(makeEvent("concurrent-msg", "store-concurrent"))
			}
		})
	}

	wg.Wait()
	// If we get here without deadlock or panic, the test passes
}

func TestBroadcaster_PublishRacingUnsubscribeDoesNotPanic(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()

	var wg sync.WaitGroup

	// Publishers hammer the store while subscriptions churn underneath
	// them. A send racing a channel close would panic here.
	stop := make(chan struct{})
	for range 4 {
		wg.Go(func() {
			for {
				select {
				case <-stop:
					return
				default:
					b.Publish(makeEvent("racing-msg", "store-churn"))
				}
			}
		})
	}

	for range 500 {
		_, subID := b.Subscribe(ctx, "store-churn")
		b.Unsubscribe("store-churn", subID)
	}

	close(stop)
	wg.Wait()
}

func TestBroadcaster_SubscribeReturnsUniqueIDs(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()

	_, id1 := b.Subscribe(ctx, "store-1")
	_, id2 := b.Subscribe(ctx, "store-1")
	_, id3 := b.Subscribe(ctx, "store-2")

	require.NotEqual(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.NotEqual(t, id2, id3)
}

func TestBroadcaster_PublishToStoreWithNoSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	// Should not panic
	b.Publish(makeEvent("msg-nowhere", "nobody-listening"))
}
