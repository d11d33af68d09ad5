// ABOUTME: SQLite implementation of the MessageStore interface using modernc.org/sqlite
// ABOUTME: Provides message/store/user persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is the fixed-width layout used for stored timestamps.
// RFC3339Nano trims trailing fractional zeros, which breaks the
// lexicographic ordering SQL relies on, so the fraction is zero-padded
// to full width instead.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the MessageStore and DirectoryStore interfaces
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS stores (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			owner_id   TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_stores_owner ON stores(owner_id);

		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			created_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			store_id   TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			body       TEXT NOT NULL,
			is_read    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,

			CHECK (role IN ('customer', 'owner')),
			CHECK (length(body) > 0),
			FOREIGN KEY (store_id) REFERENCES stores(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread
			ON messages(store_id, user_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_messages_user
			ON messages(user_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// InsertMessage appends a message to the log. The created_at timestamp is
// assigned here, at write time, unless the caller already set one (tests).
// Validation failures are reported before anything touches storage.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) error {
	if strings.TrimSpace(msg.Body) == "" {
		return ErrEmptyBody
	}
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, store_id, user_id, role, body, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.StoreID,
		msg.UserID,
		string(msg.Role),
		msg.Body,
		boolToInt(msg.IsRead),
		msg.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("inserted message", "id", msg.ID, "store_id", msg.StoreID, "user_id", msg.UserID, "role", msg.Role)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetMessage retrieves a single message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, store_id, user_id, role, body, is_read, created_at
		FROM messages
		WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, query, id)
	msg, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// scanMessage scans one message row via the given scan function
func scanMessage(scan func(dest ...any) error) (*Message, error) {
	var msg Message
	var role string
	var isRead int
	var createdAtStr string

	if err := scan(&msg.ID, &msg.StoreID, &msg.UserID, &role, &msg.Body, &isRead, &createdAtStr); err != nil {
		return nil, err
	}

	msg.Role = SenderRole(role)
	msg.IsRead = isRead != 0

	var err error
	msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &msg, nil
}

// ListThreadMessages retrieves all messages of one (store, customer) thread
// in chronological order, ties broken by message ID for determinism.
func (s *SQLiteStore) ListThreadMessages(ctx context.Context, storeID, userID string) ([]*Message, error) {
	query := `
		SELECT id, store_id, user_id, role, body, is_read, created_at
		FROM messages
		WHERE store_id = ? AND user_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, storeID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying thread messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListViewerMessages retrieves every message the viewer participates in:
// messages where the viewer is the named customer, plus all messages of
// stores the viewer owns. Ordered newest-first, ties broken by ID ascending,
// which is the order the conversation aggregator expects.
func (s *SQLiteStore) ListViewerMessages(ctx context.Context, viewerID string) ([]*Message, error) {
	query := `
		SELECT m.id, m.store_id, m.user_id, m.role, m.body, m.is_read, m.created_at
		FROM messages m
		JOIN stores s ON s.id = m.store_id
		WHERE m.user_id = ? OR s.owner_id = ?
		ORDER BY m.created_at DESC, m.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, viewerID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("querying viewer messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// MarkRead flips the read flag for one explicit message ID.
// Updates never target "everything as of now" so a racing insert in the
// same thread can't be swallowed.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) MarkRead(ctx context.Context, messageID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("marking message read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("marked message read", "id", messageID)
	return nil
}

// GetStore retrieves a store by ID.
// Returns ErrNotFound if the store doesn't exist.
func (s *SQLiteStore) GetStore(ctx context.Context, id string) (*Store, error) {
	query := `SELECT id, name, owner_id, created_at FROM stores WHERE id = ?`

	var st Store
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&st.ID, &st.Name, &st.OwnerID, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying store: %w", err)
	}

	st.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &st, nil
}

// GetStoreOwner returns the owner user ID for a store.
// Returns ErrNotFound if the store doesn't exist.
func (s *SQLiteStore) GetStoreOwner(ctx context.Context, storeID string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM stores WHERE id = ?`, storeID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying store owner: %w", err)
	}
	return ownerID, nil
}

// ListOwnedStoreIDs returns the IDs of all stores owned by the given user
func (s *SQLiteStore) ListOwnedStoreIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM stores WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying owned stores: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning store id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating store rows: %w", err)
	}
	return ids, nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, display_name, created_at FROM users WHERE id = ?`

	var u User
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.DisplayName, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &u, nil
}

// CreateStore inserts a directory store record. The directory app is the
// real owner of this data; courier writes it only from seeds and tests.
func (s *SQLiteStore) CreateStore(ctx context.Context, st *Store) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, owner_id, created_at)
		VALUES (?, ?, ?, ?)
	`, st.ID, st.Name, st.OwnerID, st.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting store: %w", err)
	}

	s.logger.Debug("created store", "id", st.ID, "owner_id", st.OwnerID)
	return nil
}

// CreateUser inserts a user record
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, created_at)
		VALUES (?, ?, ?)
	`, u.ID, u.DisplayName, u.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", u.ID)
	return nil
}

// Ensure SQLiteStore implements the storage interfaces
var _ MessageStore = (*SQLiteStore)(nil)
var _ DirectoryStore = (*SQLiteStore)(nil)
