// ABOUTME: Wire payload shapes for server-to-client socket events
// ABOUTME: One JSON-serializable payload per named event

package dispatch

import (
	"time"

	"github.com/quickmarket/pulse-gateway/internal/store"
)

// ConversationPayload is the body of an onConversation event.
type ConversationPayload struct {
	ID                string     `json:"id"`
	CreatorID         string     `json:"creatorId"`
	RecipientID       string     `json:"recipientId"`
	LastMessageSent   string     `json:"lastMessageSent,omitempty"`
	LastMessageSentAt *time.Time `json:"lastMessageSentAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// MessagePayload is the body of an onMessage event. It carries both the
// message and its conversation so clients can route without a follow-up fetch.
type MessagePayload struct {
	Message      MessageBody         `json:"message"`
	Conversation ConversationPayload `json:"conversation"`
}

// MessageBody is the message half of an onMessage payload.
type MessageBody struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	AuthorID       string    `json:"authorId"`
	Content        string    `json:"content"`
	Unread         bool      `json:"unread"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NotificationPayload is the body of a notification event: the persisted record.
type NotificationPayload struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func conversationPayload(c *store.Conversation) ConversationPayload {
	return ConversationPayload{
		ID:                c.ID,
		CreatorID:         c.CreatorID,
		RecipientID:       c.RecipientID,
		LastMessageSent:   c.LastMessageSent,
		LastMessageSentAt: c.LastMessageSentAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func messagePayload(m *store.Message, c *store.Conversation) MessagePayload {
	return MessagePayload{
		Message: MessageBody{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			AuthorID:       m.AuthorID,
			Content:        m.Content,
			Unread:         m.Unread,
			CreatedAt:      m.CreatedAt,
		},
		Conversation: conversationPayload(c),
	}
}

func notificationPayload(n *store.Notification) NotificationPayload {
	return NotificationPayload{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Body:      n.Body,
		Link:      n.Link,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
