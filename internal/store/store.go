// ABOUTME: Store interfaces and data types for pulse-gateway persistence
// ABOUTME: Defines User, Conversation, Message, Notification and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when a conversation already exists
// between the same pair of participants.
var ErrDuplicateConversation = errors.New("conversation already exists")

// Role constants for user accounts
const (
	RoleAdmin    = "admin"
	RoleCreator  = "creator"
	RoleConsumer = "consumer"
)

// User is a platform account. The gateway only reads the directory; account
// management lives elsewhere.
type User struct {
	ID        string
	Fullname  string
	Email     string
	Role      string // "admin", "creator", "consumer"
	CreatedAt time.Time
}

// Conversation links exactly two participants. At most one conversation exists
// per unordered pair, and a participant cannot converse with themselves.
type Conversation struct {
	ID                string
	CreatorID         string
	RecipientID       string
	LastMessageSent   string // message ID, empty until the first message
	LastMessageSentAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OtherParticipant returns the participant who is not userID, and whether
// userID is actually a participant of the conversation.
func (c *Conversation) OtherParticipant(userID string) (string, bool) {
	switch userID {
	case c.CreatorID:
		return c.RecipientID, true
	case c.RecipientID:
		return c.CreatorID, true
	default:
		return "", false
	}
}

// Message is a single message within a conversation. Unread defaults to true
// and is cleared only for messages not authored by the reader.
type Message struct {
	ID             string
	ConversationID string
	AuthorID       string
	Content        string
	Unread         bool
	CreatedAt      time.Time
}

// Notification is a durable per-user notification record. ReadAt and DeletedAt
// stay nil until the notification is read or soft-deleted.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	Link      string
	ReadAt    *time.Time
	DeletedAt *time.Time
	CreatedAt time.Time
}

// UserDirectory provides read access to platform accounts, plus creation for
// bootstrap and tests.
type UserDirectory interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsersByRole(ctx context.Context, role string) ([]*User, error)
}

// ConversationStore persists conversations and their unread bookkeeping.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// GetConversationByParticipants looks up the conversation for an unordered
	// pair of participants.
	GetConversationByParticipants(ctx context.Context, a, b string) (*Conversation, error)
	UpdateLastMessage(ctx context.Context, id, messageID string, at time.Time) error
	ListConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	// CountUnread counts unread messages in the conversation that were not
	// authored by readerID.
	CountUnread(ctx context.Context, conversationID, readerID string) (int, error)
	// MarkConversationRead clears the unread flag on messages in the
	// conversation that were not authored by readerID.
	MarkConversationRead(ctx context.Context, conversationID, readerID string) error
}

// MessageStore persists messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessagesByConversation(ctx context.Context, conversationID string) ([]*Message, error)
}

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	// ListNotificationsByUser returns the user's notifications, excluding
	// soft-deleted records, newest first.
	ListNotificationsByUser(ctx context.Context, userID string) ([]*Notification, error)
	// MarkNotificationRead stamps ReadAt. The record must belong to userID.
	MarkNotificationRead(ctx context.Context, id, userID string) (*Notification, error)
	// SoftDeleteNotification stamps DeletedAt. The record must belong to userID.
	SoftDeleteNotification(ctx context.Context, id, userID string) (*Notification, error)
}

// Store is the full persistence contract the gateway depends on.
type Store interface {
	UserDirectory
	ConversationStore
	MessageStore
	NotificationStore

	// Close releases any resources held by the store
	Close() error
}
