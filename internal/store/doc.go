// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces:
//
//   - UserDirectory: Platform accounts (profile lookup, role listing)
//   - ConversationStore: Two-party conversations and unread bookkeeping
//   - MessageStore: Message persistence and history
//   - NotificationStore: Durable per-user notifications with soft delete
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries. The Store
// interface bundles them for components that need the full surface.
//
// # Data Models
//
//   - User: Platform account with a role (admin, creator, consumer)
//   - Conversation: Exactly two participants, at most one per unordered pair
//   - Message: Conversation message carrying the unread flag
//   - Notification: Per-user notification with read and soft-delete timestamps
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Database file locations:
//
//   - Development: ~/.local/share/pulse/gateway.db
//   - Testing: :memory: (in-memory database)
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateConversation: The participant pair already has a conversation
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	store := store.NewMockStore()
//	// store implements the full Store interface
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
