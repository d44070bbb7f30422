// ABOUTME: Tests for the real-time dispatcher
// ABOUTME: Covers recipient resolution, offline drops, admin fan-out, failure isolation

package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickmarket/pulse-gateway/internal/event"
	"github.com/quickmarket/pulse-gateway/internal/session"
	"github.com/quickmarket/pulse-gateway/internal/store"
)

// recordingConn captures emissions for assertions. Safe for concurrent use
// because bus delivery happens on a separate goroutine.
type recordingConn struct {
	mu      sync.Mutex
	emitted []emission
	failErr error
}

type emission struct {
	event   string
	payload any
}

func (c *recordingConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	c.emitted = append(c.emitted, emission{event: event, payload: payload})
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.emitted))
	for _, e := range c.emitted {
		names = append(names, e.event)
	}
	return names
}

type fixture struct {
	sessions   *session.Registry
	store      *store.MockStore
	dispatcher *Dispatcher
}

func newFixture() *fixture {
	sessions := session.NewRegistry(nil)
	mock := store.NewMockStore()
	return &fixture{
		sessions:   sessions,
		store:      mock,
		dispatcher: New(sessions, mock, nil),
	}
}

func (f *fixture) connect(userID, role string) *recordingConn {
	conn := &recordingConn{}
	f.sessions.Set(&session.Session{UserID: userID, Role: role, Conn: conn})
	return conn
}

func (f *fixture) seedUser(t *testing.T, id, role string) {
	t.Helper()
	err := f.store.CreateUser(context.Background(), &store.User{
		ID:        id,
		Fullname:  "User " + id,
		Email:     id + "@example.com",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func (f *fixture) seedConversation(t *testing.T, id, creator, recipient string) *store.Conversation {
	t.Helper()
	conv := &store.Conversation{
		ID:          id,
		CreatorID:   creator,
		RecipientID: recipient,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateConversation(context.Background(), conv))
	return conv
}

func (f *fixture) seedMessage(t *testing.T, id, conversationID, author string) *store.Message {
	t.Helper()
	msg := &store.Message{
		ID:             id,
		ConversationID: conversationID,
		AuthorID:       author,
		Content:        "hello",
		Unread:         true,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.store.SaveMessage(context.Background(), msg))
	return msg
}

func TestDispatcher_ConversationCreatedEmitsToConnectedRecipient(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "creator", store.RoleConsumer)
	f.seedUser(t, "recipient", store.RoleCreator)
	conv := f.seedConversation(t, "c1", "creator", "recipient")

	conn := f.connect("recipient", store.RoleCreator)

	f.dispatcher.handleConversationCreated(context.Background(), event.ConversationCreated{Conversation: conv})

	require.Len(t, conn.emitted, 1)
	assert.Equal(t, EventOnConversation, conn.emitted[0].event)
	payload := conn.emitted[0].payload.(ConversationPayload)
	assert.Equal(t, "c1", payload.ID)
}

func TestDispatcher_ConversationCreatedOfflineRecipientIsDropped(t *testing.T) {
	f := newFixture()
	conv := &store.Conversation{ID: "c1", CreatorID: "a", RecipientID: "b"}

	// No session registered for b; must not panic or error.
	f.dispatcher.handleConversationCreated(context.Background(), event.ConversationCreated{Conversation: conv})
}

func TestDispatcher_MessageCreatedEmitsToAuthorAndRecipient(t *testing.T) {
	f := newFixture()
	conv := f.seedConversation(t, "c1", "alice", "bob")
	msg := f.seedMessage(t, "m1", "c1", "alice")

	aliceConn := f.connect("alice", store.RoleConsumer)
	bobConn := f.connect("bob", store.RoleCreator)

	f.dispatcher.handleMessageCreated(context.Background(), event.MessageCreated{Message: msg, Conversation: conv})

	assert.Equal(t, []string{EventOnMessage}, aliceConn.events())
	assert.Equal(t, []string{EventOnMessage}, bobConn.events())

	payload := bobConn.emitted[0].payload.(MessagePayload)
	assert.Equal(t, "m1", payload.Message.ID)
	assert.Equal(t, "c1", payload.Conversation.ID)
}

func TestDispatcher_MessageAuthoredByRecipientRoutesToCreator(t *testing.T) {
	f := newFixture()
	conv := f.seedConversation(t, "c1", "alice", "bob")
	msg := f.seedMessage(t, "m1", "c1", "bob")

	aliceConn := f.connect("alice", store.RoleConsumer)

	f.dispatcher.handleMessageCreated(context.Background(), event.MessageCreated{Message: msg, Conversation: conv})

	assert.Equal(t, []string{EventOnMessage}, aliceConn.events())
}

func TestDispatcher_MessageCreatedAuthorOnlyWhenRecipientOffline(t *testing.T) {
	f := newFixture()
	conv := f.seedConversation(t, "c1", "alice", "bob")
	msg := f.seedMessage(t, "m1", "c1", "alice")

	aliceConn := f.connect("alice", store.RoleConsumer)

	f.dispatcher.handleMessageCreated(context.Background(), event.MessageCreated{Message: msg, Conversation: conv})

	assert.Equal(t, []string{EventOnMessage}, aliceConn.events())
}

func TestDispatcher_InconsistentAuthorEmitsOnlyAuthorEcho(t *testing.T) {
	f := newFixture()
	conv := f.seedConversation(t, "c1", "alice", "bob")
	msg := f.seedMessage(t, "m1", "c1", "mallory") // not a participant

	malloryConn := f.connect("mallory", store.RoleConsumer)
	aliceConn := f.connect("alice", store.RoleConsumer)
	bobConn := f.connect("bob", store.RoleCreator)

	f.dispatcher.handleMessageCreated(context.Background(), event.MessageCreated{Message: msg, Conversation: conv})

	assert.Equal(t, []string{EventOnMessage}, malloryConn.events())
	assert.Empty(t, aliceConn.events())
	assert.Empty(t, bobConn.events())
}

func TestDispatcher_MessageCreatedNobodyConnectedIsSilent(t *testing.T) {
	f := newFixture()
	conv := f.seedConversation(t, "c1", "alice", "bob")
	msg := f.seedMessage(t, "m1", "c1", "alice")

	f.dispatcher.handleMessageCreated(context.Background(), event.MessageCreated{Message: msg, Conversation: conv})
}

func TestDispatcher_MessageCreatedMissingMessageIsDropped(t *testing.T) {
	f := newFixture()
	conn := f.connect("alice", store.RoleConsumer)

	f.dispatcher.handleMessageCreated(context.Background(), event.MessageCreated{
		Message:      &store.Message{ID: "ghost"},
		Conversation: &store.Conversation{ID: "c1"},
	})

	assert.Empty(t, conn.events())
}

func TestDispatcher_UserNotificationPersistsThenEmits(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "u1", store.RoleConsumer)
	conn := f.connect("u1", store.RoleConsumer)

	f.dispatcher.handleNotificationCreated(context.Background(), event.NotificationCreated{
		UserID: "u1",
		Title:  "Unread messages",
		Body:   "You have 3 unread messages",
	})

	records := f.store.NotificationsFor("u1")
	require.Len(t, records, 1)
	assert.Equal(t, "Unread messages", records[0].Title)

	require.Len(t, conn.emitted, 1)
	assert.Equal(t, EventNotification, conn.emitted[0].event)
	payload := conn.emitted[0].payload.(NotificationPayload)
	assert.Equal(t, records[0].ID, payload.ID)
}

func TestDispatcher_UserNotificationOfflineStillPersists(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "u1", store.RoleConsumer)

	f.dispatcher.handleNotificationCreated(context.Background(), event.NotificationCreated{
		UserID: "u1",
		Title:  "t",
		Body:   "b",
	})

	assert.Len(t, f.store.NotificationsFor("u1"), 1)
}

func TestDispatcher_AdminFanoutPersistsPerAdminEmitsToConnected(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "admin1", store.RoleAdmin)
	f.seedUser(t, "admin2", store.RoleAdmin)
	f.seedUser(t, "admin3", store.RoleAdmin)

	// Only one of the three admins is connected.
	conn := f.connect("admin2", store.RoleAdmin)

	f.dispatcher.handleNotificationCreated(context.Background(), event.NotificationCreated{
		Admin: true,
		Title: "New report",
		Body:  "A listing was reported",
	})

	for _, id := range []string{"admin1", "admin2", "admin3"} {
		assert.Len(t, f.store.NotificationsFor(id), 1, "admin %s should have a record", id)
	}
	assert.Equal(t, []string{EventNotification}, conn.events())
}

func TestDispatcher_AdminFanoutIsolatesPersistenceFailures(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "admin1", store.RoleAdmin)
	f.seedUser(t, "admin2", store.RoleAdmin)
	f.seedUser(t, "admin3", store.RoleAdmin)
	f.store.FailCreateNotificationFor = map[string]error{
		"admin2": errors.New("disk full"),
	}

	conn3 := f.connect("admin3", store.RoleAdmin)

	f.dispatcher.handleNotificationCreated(context.Background(), event.NotificationCreated{
		Admin: true,
		Title: "t",
		Body:  "b",
	})

	assert.Len(t, f.store.NotificationsFor("admin1"), 1)
	assert.Empty(t, f.store.NotificationsFor("admin2"))
	assert.Len(t, f.store.NotificationsFor("admin3"), 1)
	assert.Equal(t, []string{EventNotification}, conn3.events())
}

func TestDispatcher_PersistenceFailureSuppressesEmission(t *testing.T) {
	f := newFixture()
	f.seedUser(t, "u1", store.RoleConsumer)
	f.store.FailCreateNotificationFor = map[string]error{
		"u1": errors.New("write failed"),
	}
	conn := f.connect("u1", store.RoleConsumer)

	f.dispatcher.handleNotificationCreated(context.Background(), event.NotificationCreated{
		UserID: "u1",
		Title:  "t",
		Body:   "b",
	})

	// Emitted-but-not-persisted must never happen.
	assert.Empty(t, conn.events())
}

func TestDispatcher_EmitFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	conv := f.seedConversation(t, "c1", "alice", "bob")
	msg := f.seedMessage(t, "m1", "c1", "alice")

	broken := &recordingConn{failErr: errors.New("connection reset")}
	f.sessions.Set(&session.Session{UserID: "bob", Role: store.RoleCreator, Conn: broken})

	f.dispatcher.handleMessageCreated(context.Background(), event.MessageCreated{Message: msg, Conversation: conv})
}

func TestDispatcher_EndToEndThroughBus(t *testing.T) {
	f := newFixture()
	conv := f.seedConversation(t, "c1", "alice", "bob")
	msg := f.seedMessage(t, "m1", "c1", "alice")

	bobConn := f.connect("bob", store.RoleCreator)

	bus := event.NewBus(nil)
	f.dispatcher.Register(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Run(ctx)
	}()

	bus.Publish(event.MessageCreated{Message: msg, Conversation: conv})

	require.Eventually(t, func() bool {
		return len(bobConn.events()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
