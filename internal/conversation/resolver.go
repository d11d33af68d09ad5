// ABOUTME: Thread resolution from raw message records and viewer identity
// ABOUTME: Pure functions deriving thread keys and the viewer's relationship

package conversation

import (
	"github.com/storemap/courier/internal/store"
)

// ThreadKey uniquely identifies a conversation: one thread per
// (store, customer) pair, independent of which side authored a message.
type ThreadKey struct {
	StoreID string
	UserID  string
}

// Viewer is the identity a read or aggregation runs on behalf of.
// OwnedStores is the set of store IDs the viewer owns; it decides the
// owner-vs-customer framing of every message the viewer can see.
type Viewer struct {
	ID          string
	OwnedStores map[string]struct{}
}

// NewViewer builds a Viewer from an ID and the list of owned store IDs
func NewViewer(id string, ownedStoreIDs []string) Viewer {
	owned := make(map[string]struct{}, len(ownedStoreIDs))
	for _, sid := range ownedStoreIDs {
		owned[sid] = struct{}{}
	}
	return Viewer{ID: id, OwnedStores: owned}
}

// OwnsStore reports whether the viewer owns the given store
func (v Viewer) OwnsStore(storeID string) bool {
	_, ok := v.OwnedStores[storeID]
	return ok
}

// Resolution is the viewer's relationship to one message's thread
type Resolution struct {
	Key ThreadKey
	// ViewerIsOwner is true when the viewer owns the message's store
	ViewerIsOwner bool
	// FromViewer is true when the viewer authored the message: the
	// owning side sent it with role owner, or the viewer is the named
	// customer and the customer side sent it
	FromViewer bool
}

// Resolve computes the thread key for a message and the viewer's
// relationship to it. Pure function; access checks happen upstream in
// the access policy, never silently here.
func Resolve(msg *store.Message, viewer Viewer) Resolution {
	isOwner := viewer.OwnsStore(msg.StoreID)
	return Resolution{
		Key:           ThreadKey{StoreID: msg.StoreID, UserID: msg.UserID},
		ViewerIsOwner: isOwner,
		FromViewer: (isOwner && msg.Role == store.RoleOwner) ||
			(!isOwner && msg.Role == store.RoleCustomer && msg.UserID == viewer.ID),
	}
}
