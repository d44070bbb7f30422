// ABOUTME: In-process typed event bus decoupling domain operations from real-time dispatch
// ABOUTME: Single consumer goroutine preserves publish order; handler failures are isolated

package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/quickmarket/pulse-gateway/internal/store"
)

// Kind identifies a domain event type.
type Kind int

const (
	KindConversationCreated Kind = iota
	KindMessageCreated
	KindNotificationCreated
)

// String returns the wire-style name of the event kind.
func (k Kind) String() string {
	switch k {
	case KindConversationCreated:
		return "conversation.create"
	case KindMessageCreated:
		return "message.create"
	case KindNotificationCreated:
		return "notification.create"
	default:
		return "unknown"
	}
}

// Event is a domain event. The three concrete types below form a closed set;
// subscribers register per Kind and type-assert the payload.
type Event interface {
	Kind() Kind
}

// ConversationCreated is published after a conversation is persisted.
type ConversationCreated struct {
	Conversation *store.Conversation
}

func (ConversationCreated) Kind() Kind { return KindConversationCreated }

// MessageCreated is published after a message is persisted and the
// conversation's last-message pointer is updated.
type MessageCreated struct {
	Message      *store.Message
	Conversation *store.Conversation
}

func (MessageCreated) Kind() Kind { return KindMessageCreated }

// NotificationCreated requests delivery of a notification. When Admin is set,
// UserID is ignored and the dispatcher fans out to every admin account.
type NotificationCreated struct {
	UserID string
	Title  string
	Body   string
	Link   string
	Admin  bool
}

func (NotificationCreated) Kind() Kind { return KindNotificationCreated }

// Handler processes one event. Handlers run on the bus goroutine, so they may
// block on I/O but must not assume any particular caller.
type Handler func(ctx context.Context, ev Event)

const publishBufferSize = 256

// Bus is an in-process publish/subscribe bus. Publish is fire-and-forget:
// events are queued and a single consumer goroutine invokes the subscribed
// handlers in subscription order. A handler panic is recovered and logged and
// never reaches the publisher or sibling handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	events   chan Event
	logger   *slog.Logger
	done     chan struct{}
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Kind][]Handler),
		events:   make(chan Event, publishBufferSize),
		logger:   logger.With("component", "bus"),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a handler for the given kind. Multiple handlers per
// kind are allowed and are invoked in subscription order.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish enqueues an event for delivery. The publisher never blocks on
// handler completion; it blocks only if the queue itself is full.
func (b *Bus) Publish(ev Event) {
	select {
	case b.events <- ev:
	case <-b.done:
		b.logger.Warn("event published after bus shutdown", "kind", ev.Kind().String())
	}
}

// Run consumes the queue until ctx is cancelled, then drains whatever was
// already enqueued. Events published from one goroutine are handled in
// publish order.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-b.events:
			b.deliver(ctx, ev)
		case <-ctx.Done():
			close(b.done)
			b.drain()
			return nil
		}
	}
}

// drain handles events enqueued before shutdown. Handlers get a background
// context because the run context is already cancelled.
func (b *Bus) drain() {
	for {
		select {
		case ev := <-b.events:
			b.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := b.handlers[ev.Kind()]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(ctx, ev, h)
	}
}

// invoke runs one handler, containing any panic so sibling handlers and the
// bus loop survive.
func (b *Bus) invoke(ctx context.Context, ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"kind", ev.Kind().String(),
				"panic", r,
			)
		}
	}()
	h(ctx, ev)
}
