// ABOUTME: Scheduled unread-message aggregator publishing per-user digest notifications
// ABOUTME: Ticker-driven worker; per-user failures are logged and never abort the sweep

package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/quickmarket/pulse-gateway/internal/event"
	"github.com/quickmarket/pulse-gateway/internal/store"
)

// DefaultInterval is the sweep cadence when the config does not set one.
const DefaultInterval = time.Minute

// DigestTitle is the title of the unread-digest notification.
const DigestTitle = "Unread messages"

// nonAdminRoles are the roles swept for unread digests. Admins receive
// targeted fan-out notifications instead.
var nonAdminRoles = []string{store.RoleCreator, store.RoleConsumer}

// Aggregator periodically computes per-user unread-message counts across all
// of a user's conversations and publishes a digest notification event for
// users with pending unread messages.
type Aggregator struct {
	store    store.Store
	bus      *event.Bus
	interval time.Duration
	logger   *slog.Logger
}

// New creates an Aggregator. A non-positive interval falls back to
// DefaultInterval. Pass nil logger for default.
func New(st store.Store, bus *event.Bus, interval time.Duration, logger *slog.Logger) *Aggregator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:    st,
		bus:      bus,
		interval: interval,
		logger:   logger.With("component", "sweep"),
	}
}

// Run executes sweeps on the configured cadence until ctx is cancelled. An
// in-progress sweep is abandoned at process shutdown; per-user work is the
// unit of atomicity, not the whole sweep.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info("starting unread sweep", "interval", a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.Sweep(ctx)
		}
	}
}

// Sweep runs one aggregation pass over every non-admin user.
func (a *Aggregator) Sweep(ctx context.Context) {
	var users []*store.User
	for _, role := range nonAdminRoles {
		batch, err := a.store.ListUsersByRole(ctx, role)
		if err != nil {
			a.logger.Error("listing users failed", "role", role, "err", err)
			continue
		}
		users = append(users, batch...)
	}

	swept := 0
	for _, user := range users {
		if err := a.sweepUser(ctx, user); err != nil {
			a.logger.Error("sweeping user failed", "user_id", user.ID, "err", err)
			continue
		}
		swept++
	}

	a.logger.Debug("sweep complete", "users", len(users), "swept", swept)
}

// sweepUser sums unread counts across the user's conversations and publishes
// a digest when anything is pending. A zero count publishes nothing.
func (a *Aggregator) sweepUser(ctx context.Context, user *store.User) error {
	conversations, err := a.store.ListConversationsByParticipant(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	total := 0
	for _, conv := range conversations {
		count, err := a.store.CountUnread(ctx, conv.ID, user.ID)
		if err != nil {
			return fmt.Errorf("counting unread in conversation %s: %w", conv.ID, err)
		}
		total += count
	}

	if total == 0 {
		return nil
	}

	a.bus.Publish(event.NotificationCreated{
		UserID: user.ID,
		Title:  DigestTitle,
		Body:   digestBody(total),
	})
	return nil
}

func digestBody(count int) string {
	noun := lo.Ternary(count == 1, "message", "messages")
	return fmt.Sprintf("You have %d unread %s", count, noun)
}
