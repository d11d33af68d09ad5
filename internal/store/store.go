// ABOUTME: MessageStore interface and data types for courier persistence
// ABOUTME: Defines Message, Store, User structs and the storage interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrEmptyBody is returned when a message body is empty or whitespace-only
var ErrEmptyBody = errors.New("message body is empty")

// ErrInvalidRole is returned when a sender role is not customer or owner
var ErrInvalidRole = errors.New("invalid sender role")

// ErrConflict is reserved for future multi-writer edit support.
// Nothing returns it under the current append-only write model.
var ErrConflict = errors.New("conflict")

// SenderRole identifies which side of a thread authored a message
type SenderRole string

const (
	RoleCustomer SenderRole = "customer"
	RoleOwner    SenderRole = "owner"
)

// Valid reports whether the role is one of the two known roles
func (r SenderRole) Valid() bool {
	return r == RoleCustomer || r == RoleOwner
}

// Other returns the opposite role
func (r SenderRole) Other() SenderRole {
	if r == RoleOwner {
		return RoleCustomer
	}
	return RoleOwner
}

// Message is one entry in the append-only message log.
//
// UserID always identifies the customer side of the thread, even when
// Role is owner: an owner reply is stored against the customer it answers.
// That pair (StoreID, UserID) is what keeps one store's customer threads
// distinct from each other.
type Message struct {
	ID        string
	StoreID   string
	UserID    string
	Role      SenderRole
	Body      string
	IsRead    bool
	CreatedAt time.Time
}

// Store is a directory entry. Only OwnerID is consumed by the messaging
// core; the rest of the directory record lives in the surrounding app.
type Store struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// User is the minimal identity record needed for counterpart display
type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// MessageStore defines the interface for message-log persistence
type MessageStore interface {
	// Messages (append-only; IsRead is the only mutable field)
	InsertMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListThreadMessages(ctx context.Context, storeID, userID string) ([]*Message, error)
	ListViewerMessages(ctx context.Context, viewerID string) ([]*Message, error)
	MarkRead(ctx context.Context, messageID string) error

	// Ownership (read-only input from the directory)
	GetStore(ctx context.Context, id string) (*Store, error)
	GetStoreOwner(ctx context.Context, storeID string) (string, error)
	ListOwnedStoreIDs(ctx context.Context, ownerID string) ([]string, error)

	// Users (counterpart display identity)
	GetUser(ctx context.Context, id string) (*User, error)

	// Close releases any resources held by the store
	Close() error
}

// DirectoryStore covers the write side of stores and users. The directory
// app owns these records; courier only needs them for seeding and tests.
type DirectoryStore interface {
	CreateStore(ctx context.Context, s *Store) error
	CreateUser(ctx context.Context, u *User) error
}
