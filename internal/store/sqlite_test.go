// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers user, conversation, message, and notification persistence

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustCreateUser(t *testing.T, s *SQLiteStore, id, role string) {
	t.Helper()
	err := s.CreateUser(context.Background(), &User{
		ID:        id,
		Fullname:  "User " + id,
		Email:     id + "@example.com",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", id, err)
	}
}

func mustCreateConversation(t *testing.T, s *SQLiteStore, id, creator, recipient string) *Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv := &Conversation{
		ID:          id,
		CreatorID:   creator,
		RecipientID: recipient,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func mustSaveMessage(t *testing.T, s *SQLiteStore, id, convID, author, content string) *Message {
	t.Helper()
	msg := &Message{
		ID:             id,
		ConversationID: convID,
		AuthorID:       author,
		Content:        content,
		Unread:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	return msg
}

func TestSQLiteStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice", RoleConsumer)

	got, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Fullname != "User alice" || got.Role != RoleConsumer {
		t.Errorf("unexpected user: %+v", got)
	}

	got, err = s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != "alice" {
		t.Errorf("GetUserByEmail returned %s, want alice", got.ID)
	}

	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser(missing) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ListUsersByRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "admin1", RoleAdmin)
	mustCreateUser(t, s, "admin2", RoleAdmin)
	mustCreateUser(t, s, "alice", RoleConsumer)

	admins, err := s.ListUsersByRole(ctx, RoleAdmin)
	if err != nil {
		t.Fatalf("ListUsersByRole failed: %v", err)
	}
	if len(admins) != 2 {
		t.Errorf("got %d admins, want 2", len(admins))
	}
	for _, a := range admins {
		if a.Role != RoleAdmin {
			t.Errorf("non-admin in admin listing: %+v", a)
		}
	}
}

func TestSQLiteStore_Conversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice", RoleConsumer)
	mustCreateUser(t, s, "bob", RoleCreator)
	conv := mustCreateConversation(t, s, "c1", "alice", "bob")

	got, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.CreatorID != "alice" || got.RecipientID != "bob" {
		t.Errorf("unexpected conversation: %+v", got)
	}
	if got.LastMessageSent != "" || got.LastMessageSentAt != nil {
		t.Errorf("new conversation should have no last message: %+v", got)
	}

	// Lookup works in both directions
	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		got, err := s.GetConversationByParticipants(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("GetConversationByParticipants(%v) failed: %v", pair, err)
		}
		if got.ID != conv.ID {
			t.Errorf("GetConversationByParticipants(%v) = %s, want %s", pair, got.ID, conv.ID)
		}
	}

	// Duplicate pair is rejected regardless of direction
	dup := &Conversation{ID: "c2", CreatorID: "bob", RecipientID: "alice", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := s.CreateConversation(ctx, dup); !errors.Is(err, ErrDuplicateConversation) {
		t.Errorf("duplicate CreateConversation = %v, want ErrDuplicateConversation", err)
	}
}

func TestSQLiteStore_UpdateLastMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice", RoleConsumer)
	mustCreateUser(t, s, "bob", RoleCreator)
	mustCreateConversation(t, s, "c1", "alice", "bob")
	msg := mustSaveMessage(t, s, "m1", "c1", "alice", "hello")

	at := time.Now().UTC().Truncate(time.Second)
	if err := s.UpdateLastMessage(ctx, "c1", msg.ID, at); err != nil {
		t.Fatalf("UpdateLastMessage failed: %v", err)
	}

	got, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.LastMessageSent != msg.ID {
		t.Errorf("LastMessageSent = %s, want %s", got.LastMessageSent, msg.ID)
	}
	if got.LastMessageSentAt == nil || !got.LastMessageSentAt.Equal(at) {
		t.Errorf("LastMessageSentAt = %v, want %v", got.LastMessageSentAt, at)
	}

	if err := s.UpdateLastMessage(ctx, "missing", msg.ID, at); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateLastMessage(missing) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ListConversationsByParticipant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice", RoleConsumer)
	mustCreateUser(t, s, "bob", RoleCreator)
	mustCreateUser(t, s, "carol", RoleCreator)
	mustCreateConversation(t, s, "c1", "alice", "bob")
	mustCreateConversation(t, s, "c2", "carol", "alice")

	convs, err := s.ListConversationsByParticipant(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversationsByParticipant failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("alice has %d conversations, want 2", len(convs))
	}

	convs, err = s.ListConversationsByParticipant(ctx, "bob")
	if err != nil {
		t.Fatalf("ListConversationsByParticipant failed: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "c1" {
		t.Errorf("bob's conversations = %+v, want [c1]", convs)
	}
}

func TestSQLiteStore_Messages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice", RoleConsumer)
	mustCreateUser(t, s, "bob", RoleCreator)
	mustCreateConversation(t, s, "c1", "alice", "bob")

	for i := 0; i < 3; i++ {
		mustSaveMessage(t, s, fmt.Sprintf("m%d", i), "c1", "alice", fmt.Sprintf("message %d", i))
		time.Sleep(2 * time.Millisecond) // distinct created_at ordering
	}

	msgs, err := s.ListMessagesByConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("ListMessagesByConversation failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, m := range msgs {
		want := fmt.Sprintf("message %d", i)
		if m.Content != want {
			t.Errorf("message[%d] = %q, want %q", i, m.Content, want)
		}
	}

	got, err := s.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.Content != "message 1" || !got.Unread {
		t.Errorf("unexpected message: %+v", got)
	}

	if _, err := s.GetMessage(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMessage(missing) = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_UnreadBookkeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice", RoleConsumer)
	mustCreateUser(t, s, "bob", RoleCreator)
	mustCreateConversation(t, s, "c1", "alice", "bob")
	mustSaveMessage(t, s, "m1", "c1", "alice", "one")
	mustSaveMessage(t, s, "m2", "c1", "alice", "two")
	mustSaveMessage(t, s, "m3", "c1", "bob", "reply")

	// Unread counts exclude the reader's own messages
	count, err := s.CountUnread(ctx, "c1", "bob")
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if count != 2 {
		t.Errorf("bob's unread = %d, want 2", count)
	}

	count, err = s.CountUnread(ctx, "c1", "alice")
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if count != 1 {
		t.Errorf("alice's unread = %d, want 1", count)
	}

	// Reading clears only messages authored by others
	if err := s.MarkConversationRead(ctx, "c1", "bob"); err != nil {
		t.Fatalf("MarkConversationRead failed: %v", err)
	}

	count, err = s.CountUnread(ctx, "c1", "bob")
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if count != 0 {
		t.Errorf("bob's unread after read = %d, want 0", count)
	}

	count, err = s.CountUnread(ctx, "c1", "alice")
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if count != 1 {
		t.Errorf("alice's unread after bob read = %d, want 1", count)
	}
}

func TestSQLiteStore_Notifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "alice", RoleConsumer)

	n := &Notification{
		ID:        "n1",
		UserID:    "alice",
		Title:     "Unread messages",
		Body:      "You have 2 unread messages",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification failed: %v", err)
	}

	list, err := s.ListNotificationsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListNotificationsByUser failed: %v", err)
	}
	if len(list) != 1 || list[0].ReadAt != nil {
		t.Fatalf("unexpected notifications: %+v", list)
	}

	read, err := s.MarkNotificationRead(ctx, "n1", "alice")
	if err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}
	if read.ReadAt == nil {
		t.Error("ReadAt not set after MarkNotificationRead")
	}

	// Wrong user cannot read or delete
	if _, err := s.MarkNotificationRead(ctx, "n1", "mallory"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkNotificationRead(wrong user) = %v, want ErrNotFound", err)
	}

	deleted, err := s.SoftDeleteNotification(ctx, "n1", "alice")
	if err != nil {
		t.Fatalf("SoftDeleteNotification failed: %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Error("DeletedAt not set after SoftDeleteNotification")
	}

	// Soft-deleted notifications drop out of listings
	list, err = s.ListNotificationsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListNotificationsByUser failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d notifications after delete, want 0", len(list))
	}
}
