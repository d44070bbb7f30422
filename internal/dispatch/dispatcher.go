// ABOUTME: Real-time dispatcher translating domain events into socket emissions
// ABOUTME: Resolves recipients via the session registry and store, with per-recipient failure isolation

package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quickmarket/pulse-gateway/internal/event"
	"github.com/quickmarket/pulse-gateway/internal/session"
	"github.com/quickmarket/pulse-gateway/internal/store"
)

// Client-visible event names.
const (
	EventOnConversation = "onConversation"
	EventOnMessage      = "onMessage"
	EventNotification   = "notification"
)

// Dispatcher subscribes to domain events and emits payloads on the matching
// live connections. It never surfaces errors to publishers: a disconnected
// recipient or a missing record is a silent no-op, and store failures during
// fan-out are logged per recipient and never abort sibling deliveries.
type Dispatcher struct {
	sessions *session.Registry
	store    store.Store
	logger   *slog.Logger
}

// New creates a Dispatcher. Pass nil logger for default.
func New(sessions *session.Registry, st store.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sessions: sessions,
		store:    st,
		logger:   logger.With("component", "dispatch"),
	}
}

// Register subscribes the dispatcher's handlers on the bus.
func (d *Dispatcher) Register(bus *event.Bus) {
	bus.Subscribe(event.KindConversationCreated, d.handleConversationCreated)
	bus.Subscribe(event.KindMessageCreated, d.handleMessageCreated)
	bus.Subscribe(event.KindNotificationCreated, d.handleNotificationCreated)
}

// handleConversationCreated pushes the new conversation to its recipient. If
// the recipient is offline the event is dropped; there is no offline queue.
func (d *Dispatcher) handleConversationCreated(ctx context.Context, ev event.Event) {
	created, ok := ev.(event.ConversationCreated)
	if !ok || created.Conversation == nil {
		return
	}

	conv := created.Conversation
	s, ok := d.sessions.Get(conv.RecipientID)
	if !ok {
		d.logger.Debug("conversation recipient offline",
			"conversation_id", conv.ID,
			"recipient_id", conv.RecipientID,
		)
		return
	}

	d.emit(s, EventOnConversation, conversationPayload(conv))
}

// handleMessageCreated emits onMessage to the author's own connection (echo
// for other devices) and to the other participant of the conversation. The
// message and conversation are re-fetched so routing works from current
// durable state rather than the publisher's snapshot.
func (d *Dispatcher) handleMessageCreated(ctx context.Context, ev event.Event) {
	created, ok := ev.(event.MessageCreated)
	if !ok || created.Message == nil {
		return
	}

	msg, err := d.store.GetMessage(ctx, created.Message.ID)
	if err != nil {
		d.logger.Debug("message lookup failed, dropping dispatch",
			"message_id", created.Message.ID,
			"err", err,
		)
		return
	}

	conv, err := d.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		d.logger.Debug("conversation lookup failed, dropping dispatch",
			"conversation_id", msg.ConversationID,
			"err", err,
		)
		return
	}

	payload := messagePayload(msg, conv)

	if authorSession, ok := d.sessions.Get(msg.AuthorID); ok {
		d.emit(authorSession, EventOnMessage, payload)
	}

	// The recipient is whichever participant is not the author. An author
	// matching neither participant is inconsistent data: no recipient is
	// resolved and only the author echo above happens.
	recipientID, ok := conv.OtherParticipant(msg.AuthorID)
	if !ok {
		d.logger.Warn("message author is not a conversation participant",
			"message_id", msg.ID,
			"conversation_id", conv.ID,
			"author_id", msg.AuthorID,
		)
		return
	}

	if recipientSession, ok := d.sessions.Get(recipientID); ok {
		d.emit(recipientSession, EventOnMessage, payload)
	}
}

// handleNotificationCreated persists then emits. For admin notifications the
// admin set is resolved from the directory and each admin gets their own
// record; one admin's failure never blocks the others. Persistence always
// precedes emission, so a notification can exist without having been emitted
// but never the reverse.
func (d *Dispatcher) handleNotificationCreated(ctx context.Context, ev event.Event) {
	created, ok := ev.(event.NotificationCreated)
	if !ok {
		return
	}

	if !created.Admin {
		d.deliverNotification(ctx, created.UserID, created)
		return
	}

	admins, err := d.store.ListUsersByRole(ctx, store.RoleAdmin)
	if err != nil {
		d.logger.Error("resolving admin set failed", "err", err)
		return
	}

	for _, admin := range admins {
		d.deliverNotification(ctx, admin.ID, created)
	}
}

// deliverNotification persists one record for the target user and then emits
// it if the user is connected.
func (d *Dispatcher) deliverNotification(ctx context.Context, userID string, created event.NotificationCreated) {
	n := &store.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     created.Title,
		Body:      created.Body,
		Link:      created.Link,
		CreatedAt: time.Now().UTC(),
	}

	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.logger.Error("persisting notification failed",
			"user_id", userID,
			"title", created.Title,
			"err", err,
		)
		return
	}

	s, ok := d.sessions.Get(userID)
	if !ok {
		return
	}
	d.emit(s, EventNotification, notificationPayload(n))
}

// emit sends one event on a session's connection. Send failures are logged
// and swallowed; the transport's own lifecycle handles a broken connection.
func (d *Dispatcher) emit(s *session.Session, name string, payload any) {
	if err := s.Conn.Emit(name, payload); err != nil {
		d.logger.Debug("emit failed",
			"event", name,
			"user_id", s.UserID,
			"err", err,
		)
	}
}
