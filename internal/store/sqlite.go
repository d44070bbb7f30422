// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/conversation/message/notification persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
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
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			fullname TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			creator_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			last_message_sent TEXT,
			last_message_sent_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (creator_id) REFERENCES users(id),
			FOREIGN KEY (recipient_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_creator
			ON conversations(creator_id);

		CREATE INDEX IF NOT EXISTS idx_conversations_recipient
			ON conversations(recipient_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			content TEXT NOT NULL,
			unread INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_unread
			ON messages(conversation_id, unread);

		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			read_at DATETIME,
			deleted_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_user
			ON notifications(user_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, fullname, email, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Fullname, user.Email, user.Role, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fullname, email, role, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email address.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fullname, email, role, created_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// ListUsersByRole returns all users with the given role.
func (s *SQLiteStore) ListUsersByRole(ctx context.Context, role string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fullname, email, role, created_at FROM users
		 WHERE role = ? ORDER BY created_at`, role)
	if err != nil {
		return nil, fmt.Errorf("querying users by role: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Fullname, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Fullname, &u.Email, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// CreateConversation inserts a new conversation. Returns
// ErrDuplicateConversation if a conversation already exists for the pair,
// in either orientation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	existing, err := s.GetConversationByParticipants(ctx, conv.CreatorID, conv.RecipientID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		return ErrDuplicateConversation
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, creator_id, recipient_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.CreatorID, conv.RecipientID, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

const conversationColumns = `id, creator_id, recipient_id,
	COALESCE(last_message_sent, ''), last_message_sent_at, created_at, updated_at`

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// GetConversationByParticipants retrieves the conversation for an unordered
// pair of participants.
func (s *SQLiteStore) GetConversationByParticipants(ctx context.Context, a, b string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE (creator_id = ? AND recipient_id = ?)
		    OR (creator_id = ? AND recipient_id = ?)`,
		a, b, b, a)
	return scanConversation(row)
}

// UpdateLastMessage moves the conversation's last-message pointer.
func (s *SQLiteStore) UpdateLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET last_message_sent = ?, last_message_sent_at = ?, updated_at = ?
		 WHERE id = ?`,
		messageID, at, at, id)
	if err != nil {
		return fmt.Errorf("updating last message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversationsByParticipant returns all conversations the user takes
// part in, most recent activity first.
func (s *SQLiteStore) ListConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE creator_id = ? OR recipient_id = ?
		 ORDER BY last_message_sent_at DESC, created_at DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversationRows(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// CountUnread counts unread messages in the conversation not authored by readerID.
func (s *SQLiteStore) CountUnread(ctx context.Context, conversationID, readerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE conversation_id = ? AND author_id != ? AND unread = 1`,
		conversationID, readerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// MarkConversationRead clears the unread flag on messages not authored by readerID.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET unread = 0
		 WHERE conversation_id = ? AND author_id != ?`,
		conversationID, readerID)
	if err != nil {
		return fmt.Errorf("marking conversation read: %w", err)
	}
	return nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var lastAt sql.NullTime
	err := row.Scan(&c.ID, &c.CreatorID, &c.RecipientID, &c.LastMessageSent,
		&lastAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	if lastAt.Valid {
		c.LastMessageSentAt = &lastAt.Time
	}
	return &c, nil
}

func scanConversationRows(rows *sql.Rows) (*Conversation, error) {
	var c Conversation
	var lastAt sql.NullTime
	err := rows.Scan(&c.ID, &c.CreatorID, &c.RecipientID, &c.LastMessageSent,
		&lastAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	if lastAt.Valid {
		c.LastMessageSentAt = &lastAt.Time
	}
	return &c, nil
}

// SaveMessage inserts a new message record.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, author_id, content, unread, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.AuthorID, msg.Content, msg.Unread, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, author_id, content, unread, created_at
		 FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ConversationID, &m.AuthorID, &m.Content, &m.Unread, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	return &m, nil
}

// ListMessagesByConversation returns the conversation's messages, oldest first.
func (s *SQLiteStore) ListMessagesByConversation(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, author_id, content, unread, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.AuthorID, &m.Content, &m.Unread, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// CreateNotification inserts a new notification record.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, body, link, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Body, n.Link, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// ListNotificationsByUser returns the user's notifications, excluding
// soft-deleted records, newest first.
func (s *SQLiteStore) ListNotificationsByUser(ctx context.Context, userID string) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, body, link, read_at, deleted_at, created_at
		 FROM notifications
		 WHERE user_id = ? AND deleted_at IS NULL
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotificationRows(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead stamps the notification's ReadAt timestamp.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id, userID string) (*Notification, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		now, id, userID)
	if err != nil {
		return nil, fmt.Errorf("marking notification read: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}
	return s.getNotification(ctx, id)
}

// SoftDeleteNotification stamps the notification's DeletedAt timestamp.
func (s *SQLiteStore) SoftDeleteNotification(ctx context.Context, id, userID string) (*Notification, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET deleted_at = ?
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		now, id, userID)
	if err != nil {
		return nil, fmt.Errorf("soft-deleting notification: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}
	return s.getNotification(ctx, id)
}

func (s *SQLiteStore) getNotification(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	var readAt, deletedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, body, link, read_at, deleted_at, created_at
		 FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Link, &readAt, &deletedAt, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning notification: %w", err)
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	if deletedAt.Valid {
		n.DeletedAt = &deletedAt.Time
	}
	return &n, nil
}

func scanNotificationRows(rows *sql.Rows) (*Notification, error) {
	var n Notification
	var readAt, deletedAt sql.NullTime
	err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Link, &readAt, &deletedAt, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning notification: %w", err)
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	if deletedAt.Valid {
		n.DeletedAt = &deletedAt.Time
	}
	return &n, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
