// Package store provides persistent storage for courier using SQLite.
//
// # Architecture
//
// Two interfaces split the storage surface:
//
//   - MessageStore: the append-only message log plus the read-only
//     ownership and user-identity lookups the messaging core consumes
//   - DirectoryStore: the write side of stores and users, owned by the
//     surrounding directory application (courier uses it for seeding
//     and tests only)
//
// SQLiteStore implements both in a single struct.
//
// # Data Models
//
//   - Message: one log entry; UserID always names the customer side of
//     the thread, whichever side authored the message
//   - Store: directory record; only OwnerID matters to messaging
//   - User: display identity for conversation counterparts
//
// # Write Model
//
// Messages are append-only. The only mutation is MarkRead, which targets
// one explicit message ID. There is no separate conversation record: a
// thread is derived from the log as the (store_id, user_id) pair, so a
// message insert and its "create thread" effect are a single append.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC 3339 text with nanosecond precision and
// assigned at insert time; readers order by (created_at, id).
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrEmptyBody, ErrInvalidRole: rejected before touching storage
//   - ErrConflict: reserved for future edit support, currently unused
//
// Anything else wrapped out of this package is a storage fault and safe
// to retry.
package store
