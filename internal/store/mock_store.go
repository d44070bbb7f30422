// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and inject per-operation failures

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User
	conversations map[string]*Conversation
	messages      map[string]*Message      // keyed by message ID
	byConv        map[string][]string      // conversationID -> message IDs, insertion order
	notifications map[string]*Notification // keyed by notification ID

	// FailCreateNotificationFor makes CreateNotification fail for the given
	// user IDs. Used to test per-recipient failure isolation.
	FailCreateNotificationFor map[string]error

	// FailListConversationsFor makes ListConversationsByParticipant fail for
	// the given user IDs. Used to test per-user sweep isolation.
	FailListConversationsFor map[string]error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string]*Message),
		byConv:        make(map[string][]string),
		notifications: make(map[string]*Notification),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := *user
	m.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			result := *u
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsersByRole returns users with the given role, ordered by creation time.
func (m *MockStore) ListUsersByRole(ctx context.Context, role string) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []*User
	for _, u := range m.users {
		if u.Role == role {
			result := *u
			users = append(users, &result)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// CreateConversation stores a new conversation, enforcing the unordered-pair
// uniqueness invariant.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.conversations {
		if samePair(existing, conv.CreatorID, conv.RecipientID) {
			return ErrDuplicateConversation
		}
	}

	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// GetConversationByParticipants retrieves the conversation for an unordered pair.
func (m *MockStore) GetConversationByParticipants(ctx context.Context, a, b string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.conversations {
		if samePair(c, a, b) {
			result := *c
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateLastMessage moves the conversation's last-message pointer.
func (m *MockStore) UpdateLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	c.LastMessageSent = messageID
	c.LastMessageSentAt = &t
	c.UpdatedAt = at
	return nil
}

// ListConversationsByParticipant returns the user's conversations, most
// recent activity first.
func (m *MockStore) ListConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.RLock()
	if err, ok := m.FailListConversationsFor[userID]; ok {
		m.mu.RUnlock()
		return nil, err
	}

	var convs []*Conversation
	for _, c := range m.conversations {
		if c.CreatorID == userID || c.RecipientID == userID {
			result := *c
			convs = append(convs, &result)
		}
	}
	m.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		return activityTime(convs[i]).After(activityTime(convs[j]))
	})
	return convs, nil
}

func activityTime(c *Conversation) time.Time {
	if c.LastMessageSentAt != nil {
		return *c.LastMessageSentAt
	}
	return c.CreatedAt
}

// CountUnread counts unread messages not authored by readerID.
func (m *MockStore) CountUnread(ctx context.Context, conversationID, readerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, id := range m.byConv[conversationID] {
		msg := m.messages[id]
		if msg.Unread && msg.AuthorID != readerID {
			count++
		}
	}
	return count, nil
}

// MarkConversationRead clears the unread flag on messages not authored by readerID.
func (m *MockStore) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.byConv[conversationID] {
		msg := m.messages[id]
		if msg.AuthorID != readerID {
			msg.Unread = false
		}
	}
	return nil
}

// SaveMessage stores a new message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := *msg
	m.messages[v.ID] = &v
	m.byConv[v.ConversationID] = append(m.byConv[v.ConversationID], v.ID)
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *msg
	return &result, nil
}

// ListMessagesByConversation returns the conversation's messages, oldest first.
func (m *MockStore) ListMessagesByConversation(ctx context.Context, conversationID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []*Message
	for _, id := range m.byConv[conversationID] {
		result := *m.messages[id]
		msgs = append(msgs, &result)
	}
	return msgs, nil
}

// CreateNotification stores a new notification.
func (m *MockStore) CreateNotification(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailCreateNotificationFor[n.UserID]; ok {
		return err
	}

	v := *n
	m.notifications[v.ID] = &v
	return nil
}

// ListNotificationsByUser returns the user's notifications, excluding
// soft-deleted records, newest first.
func (m *MockStore) ListNotificationsByUser(ctx context.Context, userID string) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var notifications []*Notification
	for _, n := range m.notifications {
		if n.UserID == userID && n.DeletedAt == nil {
			result := *n
			notifications = append(notifications, &result)
		}
	}
	sort.Slice(notifications, func(i, j int) bool {
		if notifications[i].CreatedAt.Equal(notifications[j].CreatedAt) {
			return notifications[i].ID > notifications[j].ID
		}
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications, nil
}

// MarkNotificationRead stamps ReadAt on the user's notification.
func (m *MockStore) MarkNotificationRead(ctx context.Context, id, userID string) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.UserID != userID || n.DeletedAt != nil {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	n.ReadAt = &now
	result := *n
	return &result, nil
}

// SoftDeleteNotification stamps DeletedAt on the user's notification.
func (m *MockStore) SoftDeleteNotification(ctx context.Context, id, userID string) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.UserID != userID || n.DeletedAt != nil {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	n.DeletedAt = &now
	result := *n
	return &result, nil
}

// NotificationsFor returns every stored notification for the user, including
// soft-deleted records. Test helper.
func (m *MockStore) NotificationsFor(userID string) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			result := *n
			out = append(out, &result)
		}
	}
	return out
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

func samePair(c *Conversation, a, b string) bool {
	return (c.CreatorID == a && c.RecipientID == b) ||
		(c.CreatorID == b && c.RecipientID == a)
}
