// ABOUTME: Access policy gating reads and writes on message threads
// ABOUTME: A thread is visible to its customer and the store owner, nobody else

package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/storemap/courier/internal/store"
)

// ErrForbidden is returned when a viewer may not touch a thread.
// It is always surfaced as an explicit denial, never downgraded to an
// empty result.
var ErrForbidden = errors.New("forbidden")

// OwnerLookup resolves store ownership. Satisfied by store.SQLiteStore.
type OwnerLookup interface {
	GetStoreOwner(ctx context.Context, storeID string) (string, error)
}

// Policy decides who may read and write a given thread
type Policy struct {
	owners OwnerLookup
}

// New creates a Policy backed by the given ownership lookup
func New(owners OwnerLookup) *Policy {
	return &Policy{owners: owners}
}

// CanRead checks whether viewerID may read thread (storeID, userID).
// Allowed iff the viewer is the thread's customer or the store's owner.
// Unknown stores surface store.ErrNotFound.
func (p *Policy) CanRead(ctx context.Context, viewerID, storeID, userID string) error {
	if viewerID == userID {
		return nil
	}

	owner, err := p.owners.GetStoreOwner(ctx, storeID)
	if err != nil {
		return fmt.Errorf("resolving store owner: %w", err)
	}
	if viewerID == owner {
		return nil
	}

	return fmt.Errorf("%w: viewer %s has no access to thread (%s, %s)", ErrForbidden, viewerID, storeID, userID)
}

// CanWrite checks whether viewerID may send into thread (storeID,
// targetUserID) with the claimed role. Beyond the read rule, the role
// must match the viewer's actual relationship: owner only if the viewer
// owns the store, customer only if the viewer is the target customer.
func (p *Policy) CanWrite(ctx context.Context, viewerID, storeID, targetUserID string, role store.SenderRole) error {
	owner, err := p.owners.GetStoreOwner(ctx, storeID)
	if err != nil {
		return fmt.Errorf("resolving store owner: %w", err)
	}

	switch role {
	case store.RoleOwner:
		if viewerID != owner {
			return fmt.Errorf("%w: viewer %s is not the owner of store %s", ErrForbidden, viewerID, storeID)
		}
	case store.RoleCustomer:
		if viewerID != targetUserID {
			return fmt.Errorf("%w: viewer %s cannot write as customer %s", ErrForbidden, viewerID, targetUserID)
		}
		if viewerID == owner {
			// The owner messaging their own store makes no thread
			return fmt.Errorf("%w: store owner cannot open a customer thread with themselves", ErrForbidden)
		}
	default:
		return fmt.Errorf("%w: %q", store.ErrInvalidRole, role)
	}

	return nil
}
