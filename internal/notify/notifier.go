// Package notify turns store-change triggers into push notifications,
// gated by per-user settings and a once-per-calendar-day eligibility
// reservation. Reserving the slot and sending are separate steps: the
// reservation is committed first, so a crashed send costs the user one
// notification for the day rather than risking a duplicate.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"confessly/internal/events"
	"confessly/internal/push"
	"confessly/internal/store"
	"confessly/pkg/domain"
)

const (
	// confessionPoolLimit bounds how many candidates are loaded before
	// the random fan-out pick.
	confessionPoolLimit = 50
	// confessionFanout is how many users hear about one new confession.
	confessionFanout = 5
)

// Notifier consumes events and delivers notifications through a Sender.
type Notifier struct {
	store    store.Store
	sender   push.Sender
	loc      *time.Location
	now      func() time.Time
	reminder *rate.Limiter
}

// Config wires the notifier.
type Config struct {
	Store  store.Store
	Sender push.Sender
	// Timezone fixes the calendar used for the daily eligibility gate
	// and the reminder schedule. Defaults to Asia/Kolkata.
	Timezone string
	// ReminderRate throttles daily-reminder sends. Defaults to 20/s.
	ReminderRate rate.Limit
	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// New constructs a Notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("notifier store required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("notifier sender required")
	}
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	reminderRate := cfg.ReminderRate
	if reminderRate <= 0 {
		reminderRate = 20
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Notifier{
		store:    cfg.Store,
		sender:   cfg.Sender,
		loc:      loc,
		now:      now,
		reminder: rate.NewLimiter(reminderRate, 1),
	}, nil
}

// HandleEvent dispatches a bus event. Unknown types are ignored so new
// producers can roll out ahead of consumers.
func (n *Notifier) HandleEvent(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.TypeConfessionCreated:
		return n.OnConfessionCreated(ctx, ev.ConfessionID, ev.UserID)
	case events.TypeReactionCreated:
		return n.OnReactionCreated(ctx, ev.ConfessionID, ev.UserID)
	}
	return nil
}

// OnConfessionCreated fans a new-confession alert out to a small random
// sample of eligible users, never including the author.
func (n *Notifier) OnConfessionCreated(ctx context.Context, confessionID, authorID string) error {
	pool, err := n.store.ListPushableUsers(ctx, confessionPoolLimit)
	if err != nil {
		return fmt.Errorf("load notification pool: %w", err)
	}
	candidates := pool[:0]
	for _, u := range pool {
		if u.ID != authorID {
			candidates = append(candidates, u)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > confessionFanout {
		candidates = candidates[:confessionFanout]
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range candidates {
		user := u
		g.Go(func() error {
			n.deliver(gctx, user.ID, domain.CategoryNewConfession, push.Notification{
				Title: "Someone just shared something important.",
				Body:  "Tap to see what's on their mind.",
				Data:  map[string]string{"confessionId": confessionID},
			})
			return nil
		})
	}
	return g.Wait()
}

// OnReactionCreated alerts the confession's author that someone reacted.
// The reactor's identity never appears in the payload, and self-reactions
// produce nothing.
func (n *Notifier) OnReactionCreated(ctx context.Context, confessionID, reactorID string) error {
	confession, found, err := n.store.GetConfession(ctx, confessionID)
	if err != nil {
		return fmt.Errorf("load confession %s: %w", confessionID, err)
	}
	if !found || confession.UserID == "" || confession.UserID == reactorID {
		return nil
	}
	n.deliver(ctx, confession.UserID, domain.CategoryReaction, push.Notification{
		Title: "Someone reacted to your confession.",
		Body:  "Your words resonated with someone.",
		Data:  map[string]string{"confessionId": confessionID},
	})
	return nil
}

// RunDailyReminder sends the reminder to every eligible user, throttled
// so a large user base does not burst the delivery transport.
func (n *Notifier) RunDailyReminder(ctx context.Context) error {
	users, err := n.store.ListPushableUsers(ctx, 0)
	if err != nil {
		return fmt.Errorf("load reminder recipients: %w", err)
	}
	for _, u := range users {
		if err := n.reminder.Wait(ctx); err != nil {
			return err
		}
		n.deliver(ctx, u.ID, domain.CategoryDailyReminder, push.Notification{
			Title: "Holding something inside?",
			Body:  "You're not alone. Share anonymously.",
		})
	}
	return nil
}

// deliver reserves the user's daily slot and, if granted, sends. Per-user
// failures are logged and swallowed so one bad recipient never blocks the
// rest of a fan-out.
func (n *Notifier) deliver(ctx context.Context, userID string, category domain.NotificationCategory, notification push.Notification) {
	token, ok, err := n.reserveDailySlot(ctx, userID, category)
	if err != nil {
		slog.Error("reserve notification slot", "user_id", userID, "category", category, "err", err)
		return
	}
	if !ok {
		return
	}
	notification.Token = token
	if err := n.sender.Send(ctx, notification); err != nil {
		slog.Error("send notification", "user_id", userID, "category", category, "err", err)
	}
}

// reserveDailySlot atomically claims the user's one notification for the
// current calendar day. It returns the push token to deliver to, or
// ok=false when settings, the missing token, or the day gate refuse.
func (n *Notifier) reserveDailySlot(ctx context.Context, userID string, category domain.NotificationCategory) (string, bool, error) {
	now := n.now()
	var token string
	granted := false
	err := n.store.Update(ctx, func(tx store.Tx) error {
		user, found, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		if !found || user.PushToken == "" {
			return nil
		}
		if !user.NotificationSettings.Allows(category) {
			return nil
		}
		if !user.LastNotificationTime.IsZero() && sameDay(user.LastNotificationTime, now, n.loc) {
			return nil
		}
		user.LastNotificationTime = now
		if err := tx.SaveUser(user); err != nil {
			return err
		}
		token = user.PushToken
		granted = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return token, granted, nil
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
