// ABOUTME: Messaging service for conversation, message and notification operations
// ABOUTME: Persists domain state through the store and publishes events for real-time dispatch

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/quickmarket/pulse-gateway/internal/event"
	"github.com/quickmarket/pulse-gateway/internal/store"
)

// Service errors surfaced to the HTTP layer.
var (
	ErrRecipientNotFound    = errors.New("recipient does not exist")
	ErrSelfConversation     = errors.New("cannot create conversation with yourself")
	ErrConversationExists   = errors.New("conversation already in existence")
	ErrConversationNotFound = errors.New("conversation does not exist")
	ErrNotificationNotFound = errors.New("notification does not exist")
)

// Service is the domain layer between the HTTP handlers and the store. Every
// mutation persists first, then publishes the matching domain event; the
// real-time layer never sees state that is not durable.
type Service struct {
	store  store.Store
	bus    *event.Bus
	logger *slog.Logger
}

// New creates a messaging Service. Pass nil logger for default.
func New(st store.Store, bus *event.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		bus:    bus,
		logger: logger.With("component", "messaging"),
	}
}

// ConversationView is a conversation joined with its counterpart user and the
// caller's unread count.
type ConversationView struct {
	Conversation *store.Conversation
	Counterpart  *store.User
	Unread       int
}

// CreateConversation starts a conversation between creatorID and recipientID.
// The recipient must exist, must differ from the creator, and the unordered
// pair must not already have a conversation.
func (s *Service) CreateConversation(ctx context.Context, creatorID, recipientID string) (*store.Conversation, error) {
	recipient, err := s.store.GetUser(ctx, recipientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up recipient: %w", err)
	}

	if creatorID == recipient.ID {
		return nil, ErrSelfConversation
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:          uuid.New().String(),
		CreatorID:   creatorID,
		RecipientID: recipient.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			return nil, ErrConversationExists
		}
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.bus.Publish(event.ConversationCreated{Conversation: conv})

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"creator_id", conv.CreatorID,
		"recipient_id", conv.RecipientID,
	)
	return conv, nil
}

// GetConversation fetches one conversation by ID.
func (s *Service) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return conv, err
}

// CheckConversation reports whether a conversation exists between the two
// users. A missing conversation is a normal answer, not an error.
func (s *Service) CheckConversation(ctx context.Context, a, b string) (*store.Conversation, error) {
	conv, err := s.store.GetConversationByParticipants(ctx, a, b)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return conv, err
}

// ListConversations returns the user's conversations with counterpart and
// unread count resolved, most recent activity first. When search is set,
// conversations are filtered on the counterpart's fullname or email.
func (s *Service) ListConversations(ctx context.Context, userID, search string) ([]*ConversationView, error) {
	conversations, err := s.store.ListConversationsByParticipant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	views := make([]*ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		counterpartID, ok := conv.OtherParticipant(userID)
		if !ok {
			continue
		}

		counterpart, err := s.store.GetUser(ctx, counterpartID)
		if err != nil {
			s.logger.Warn("counterpart lookup failed",
				"conversation_id", conv.ID,
				"user_id", counterpartID,
				"err", err,
			)
			continue
		}

		unread, err := s.store.CountUnread(ctx, conv.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("counting unread for conversation %s: %w", conv.ID, err)
		}

		views = append(views, &ConversationView{
			Conversation: conv,
			Counterpart:  counterpart,
			Unread:       unread,
		})
	}

	if search == "" {
		return views, nil
	}

	needle := strings.ToLower(search)
	return lo.Filter(views, func(v *ConversationView, _ int) bool {
		return strings.Contains(strings.ToLower(v.Counterpart.Fullname), needle) ||
			strings.Contains(strings.ToLower(v.Counterpart.Email), needle)
	}), nil
}

// CreateMessageResult carries the persisted message together with the updated
// conversation, matching the message.create event payload.
type CreateMessageResult struct {
	Message      *store.Message
	Conversation *store.Conversation
}

// CreateMessage persists a message in the conversation, moves the
// conversation's last-message pointer and publishes message.create.
func (s *Service) CreateMessage(ctx context.Context, authorID, conversationID, content string) (*CreateMessageResult, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}

	now := time.Now().UTC()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		AuthorID:       authorID,
		Content:        content,
		Unread:         true,
		CreatedAt:      now,
	}

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	if err := s.store.UpdateLastMessage(ctx, conv.ID, msg.ID, now); err != nil {
		return nil, fmt.Errorf("updating last message pointer: %w", err)
	}

	conv.LastMessageSent = msg.ID
	conv.LastMessageSentAt = &now
	conv.UpdatedAt = now

	s.bus.Publish(event.MessageCreated{Message: msg, Conversation: conv})

	return &CreateMessageResult{Message: msg, Conversation: conv}, nil
}

// ListMessages returns the conversation's messages oldest first, with each
// author resolved from the directory.
func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, map[string]*store.User, error) {
	msgs, err := s.store.ListMessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing messages: %w", err)
	}

	authors := make(map[string]*store.User)
	for _, id := range lo.Uniq(lo.Map(msgs, func(m *store.Message, _ int) string { return m.AuthorID })) {
		author, err := s.store.GetUser(ctx, id)
		if err != nil {
			s.logger.Warn("author lookup failed", "user_id", id, "err", err)
			continue
		}
		authors[id] = author
	}

	return msgs, authors, nil
}

// ReadConversation marks the conversation's messages not authored by readerID
// as read. The conversation must exist.
func (s *Service) ReadConversation(ctx context.Context, conversationID, readerID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}

	if err := s.store.MarkConversationRead(ctx, conversationID, readerID); err != nil {
		return nil, fmt.Errorf("marking conversation read: %w", err)
	}
	return conv, nil
}

// ListNotifications returns the user's live notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string) ([]*store.Notification, error) {
	return s.store.ListNotificationsByUser(ctx, userID)
}

// ReadNotification stamps a notification as read for the user.
func (s *Service) ReadNotification(ctx context.Context, id, userID string) (*store.Notification, error) {
	n, err := s.store.MarkNotificationRead(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

// DeleteNotification soft-deletes a notification for the user.
func (s *Service) DeleteNotification(ctx context.Context, id, userID string) (*store.Notification, error) {
	n, err := s.store.SoftDeleteNotification(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}
