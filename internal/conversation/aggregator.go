// ABOUTME: Conversation aggregation folding the message log into summaries
// ABOUTME: Pure reduction producing one summary per thread for a given viewer

package conversation

import (
	"sort"
	"time"

	"github.com/storemap/courier/internal/store"
)

// Summary is the per-viewer projection of one thread's latest state.
// It is derived entirely from the message log plus the viewer identity;
// no separate mutable conversation record exists to drift out of sync.
type Summary struct {
	StoreID string
	// CounterpartID names the other side: the customer's user ID when
	// the viewer is the owner, the store ID when the viewer is the
	// customer. CounterpartName is filled in by the service layer.
	CounterpartID   string
	CounterpartName string

	LastMessage     string
	LastMessageID   string
	LastMessageTime time.Time

	UnreadCount        int
	IsOwnerView        bool
	LastSenderIsViewer bool

	key ThreadKey
}

// Key returns the thread key this summary describes
func (s *Summary) Key() ThreadKey {
	return s.key
}

// Aggregate reduces a message log into the conversation summaries visible
// to the viewer, newest thread first.
//
// The input is re-sorted here by (created_at desc, id asc) so the result
// is deterministic regardless of what ordering the fetch or the notifier
// delivered. The first message seen for a thread key is definitionally
// that thread's latest message; every message of the thread contributes
// to the unread count when it is unread and authored by the other party.
func Aggregate(viewer Viewer, msgs []*store.Message) []*Summary {
	sorted := make([]*store.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	byKey := make(map[ThreadKey]*Summary)
	var ordered []*Summary

	for _, msg := range sorted {
		res := Resolve(msg, viewer)

		summary, seen := byKey[res.Key]
		if !seen {
			counterpart := msg.StoreID
			if res.ViewerIsOwner {
				counterpart = msg.UserID
			}
			summary = &Summary{
				StoreID:            msg.StoreID,
				CounterpartID:      counterpart,
				LastMessage:        msg.Body,
				LastMessageID:      msg.ID,
				LastMessageTime:    msg.CreatedAt,
				IsOwnerView:        res.ViewerIsOwner,
				LastSenderIsViewer: res.FromViewer,
				key:                res.Key,
			}
			byKey[res.Key] = summary
			ordered = append(ordered, summary)
		}

		if !msg.IsRead && sentByOtherParty(msg, res.ViewerIsOwner) {
			summary.UnreadCount++
		}
	}

	return ordered
}

// sentByOtherParty reports whether the message was authored by the party
// opposite the viewer. A viewer never counts their own sent messages as
// unread.
func sentByOtherParty(msg *store.Message, viewerIsOwner bool) bool {
	if viewerIsOwner {
		return msg.Role == store.RoleCustomer
	}
	return msg.Role == store.RoleOwner
}
