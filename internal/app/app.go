// Package app holds the gate operations: every client-triggered mutation
// passes through here, inside a store transaction, so limits and
// invariants hold under concurrent calls.
package app

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf16"

	"confessly/internal/apperr"
	"confessly/internal/events"
	"confessly/internal/filter"
	"confessly/internal/playclient"
	"confessly/internal/policy"
	"confessly/internal/store"
	"confessly/internal/util"
	"confessly/pkg/domain"
)

// MaxContentLength caps confession content, counted in UTF-16 code units
// to match what the mobile clients count.
const MaxContentLength = 500

const creditProductID = "paid_confession_10"

// Publisher emits store-change triggers after a successful commit.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// App wires the gates to their dependencies.
type App struct {
	store    store.Store
	filter   *filter.Filter
	verifier playclient.Verifier
	events   Publisher
	now      func() time.Time
}

// Config wires the App. Events and Verifier may be nil: events are then
// dropped and purchase claims rejected as unverifiable.
type Config struct {
	Store    store.Store
	Filter   *filter.Filter
	Verifier playclient.Verifier
	Events   Publisher
	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// New constructs the gate layer.
func New(cfg Config) *App {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:    cfg.Store,
		filter:   cfg.Filter,
		verifier: cfg.Verifier,
		events:   cfg.Events,
		now:      now,
	}
}

// SubmitConfessionInput is the caller-supplied part of a submission.
type SubmitConfessionInput struct {
	Content  string `json:"content"`
	Category string `json:"category"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	IsPaid   bool   `json:"isPaid"`
}

// SubmitConfession validates, rate-limits, filters and persists a new
// confession. Paid submissions spend one credit and bypass quota; free
// ones advance the caller's daily counters.
func (a *App) SubmitConfession(ctx context.Context, userID string, in SubmitConfessionInput) (domain.Confession, error) {
	if userID == "" {
		return domain.Confession{}, apperr.E(apperr.KindUnauthenticated, "User must be logged in.")
	}
	if strings.TrimSpace(in.Content) == "" || strings.TrimSpace(in.Category) == "" {
		return domain.Confession{}, apperr.E(apperr.KindInvalidArgument, "Content and category are required.")
	}
	if contentLength(in.Content) > MaxContentLength {
		return domain.Confession{}, apperr.E(apperr.KindInvalidArgument, "Confession too long (max 500 chars).")
	}

	now := a.now()
	confession := domain.Confession{
		ID:             util.NewID(),
		Content:        in.Content,
		Category:       in.Category,
		UserID:         userID,
		City:           in.City,
		State:          in.State,
		Country:        in.Country,
		ReactionCounts: domain.ZeroReactionCounts(),
		IsPaid:         in.IsPaid,
		CreatedAt:      now,
	}

	err := a.store.Update(ctx, func(tx store.Tx) error {
		user, _, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		user.ID = userID
		if err := policy.CheckPost(now, user, in.IsPaid); err != nil {
			return err
		}
		// Quota errors take precedence over the content screen.
		if !a.filter.Clean(in.Content) {
			return apperr.E(apperr.KindInvalidArgument, "Inappropriate language detected. Please be respectful.")
		}
		if err := tx.SaveConfession(confession); err != nil {
			return err
		}
		if in.IsPaid {
			user.PaidConfessionCredits--
		} else {
			user.DailyPostCount = policy.EffectiveDailyCount(now, user.LastPostTime, user.DailyPostCount) + 1
			user.LastPostTime = now
		}
		return tx.SaveUser(user)
	})
	if err != nil {
		return domain.Confession{}, err
	}

	a.publish(ctx, events.Event{
		Type:         events.TypeConfessionCreated,
		ConfessionID: confession.ID,
		UserID:       userID,
	})
	return confession, nil
}

// ToggleReaction flips the caller's reaction on a confession between
// absent, present and present-with-another-kind, keeping the per-kind
// counters consistent with the set of live reactions.
func (a *App) ToggleReaction(ctx context.Context, userID, confessionID string, kind domain.ReactionKind) (domain.ToggleAction, error) {
	if userID == "" {
		return "", apperr.E(apperr.KindUnauthenticated, "User must be logged in.")
	}
	if confessionID == "" || kind == "" {
		return "", apperr.E(apperr.KindInvalidArgument, "Missing fields.")
	}
	if !domain.ValidReactionKind(kind) {
		return "", apperr.E(apperr.KindInvalidArgument, "Invalid reaction type.")
	}

	now := a.now()
	var action domain.ToggleAction
	err := a.store.Update(ctx, func(tx store.Tx) error {
		confession, found, err := tx.GetConfession(confessionID)
		if err != nil {
			return err
		}
		if !found {
			return apperr.E(apperr.KindNotFound, "Confession not found.")
		}

		state := domain.ReactionState{}
		if existing, found, err := tx.GetReaction(confessionID, userID); err != nil {
			return err
		} else if found {
			state = domain.ReactionState{Present: true, Kind: existing.Kind}
		}

		transition := domain.Toggle(state, kind)
		action = transition.Action

		if confession.ReactionCounts == nil {
			confession.ReactionCounts = domain.ZeroReactionCounts()
		}
		for k, delta := range transition.Deltas {
			confession.ReactionCounts[k] += delta
		}
		if err := tx.SaveConfession(confession); err != nil {
			return err
		}

		if transition.Next.Present {
			return tx.SaveReaction(domain.Reaction{
				ConfessionID: confessionID,
				UserID:       userID,
				Kind:         transition.Next.Kind,
				CreatedAt:    now,
			})
		}
		return tx.DeleteReaction(confessionID, userID)
	})
	if err != nil {
		return "", err
	}

	if action == domain.ToggleAdded {
		a.publish(ctx, events.Event{
			Type:         events.TypeReactionCreated,
			ConfessionID: confessionID,
			UserID:       userID,
		})
	}
	return action, nil
}

// SubmitReport records one report per (confession, reporter), bumps the
// confession's report counter and the reporter's daily quota.
func (a *App) SubmitReport(ctx context.Context, userID, confessionID, reason string) error {
	if userID == "" {
		return apperr.E(apperr.KindUnauthenticated, "User must be logged in.")
	}
	if confessionID == "" || strings.TrimSpace(reason) == "" {
		return apperr.E(apperr.KindInvalidArgument, "Missing fields.")
	}

	now := a.now()
	return a.store.Update(ctx, func(tx store.Tx) error {
		reported, err := tx.HasReport(confessionID, userID)
		if err != nil {
			return err
		}
		if reported {
			return apperr.E(apperr.KindAlreadyExists, "You have already reported this.")
		}

		confession, found, err := tx.GetConfession(confessionID)
		if err != nil {
			return err
		}
		if !found {
			return apperr.E(apperr.KindNotFound, "Confession not found.")
		}

		user, _, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		user.ID = userID
		if err := policy.CheckReport(now, user); err != nil {
			return err
		}

		if err := tx.SaveReport(domain.Report{
			ConfessionID: confessionID,
			ReporterID:   userID,
			Reason:       reason,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		confession.ReportCount++
		if err := tx.SaveConfession(confession); err != nil {
			return err
		}

		user.DailyReportCount = policy.EffectiveDailyCount(now, user.LastReportTime, user.DailyReportCount) + 1
		user.LastReportTime = now
		return tx.SaveUser(user)
	})
}

// VerifyPurchaseInput carries a purchase claim. ConfessionID is required
// only for highlight products.
type VerifyPurchaseInput struct {
	ProductID     string `json:"productId"`
	PurchaseToken string `json:"purchaseToken"`
	ConfessionID  string `json:"confessionId"`
}

// VerifyPurchase checks a purchase claim with the external authority and
// applies its effect exactly once. The effect and the used-token record
// commit in one transaction, so a token can never pay out twice even
// under concurrent replays.
func (a *App) VerifyPurchase(ctx context.Context, userID string, in VerifyPurchaseInput) error {
	if userID == "" {
		return apperr.E(apperr.KindUnauthenticated, "User must be logged in.")
	}
	if in.ProductID == "" || in.PurchaseToken == "" {
		return apperr.E(apperr.KindInvalidArgument, "Missing required fields.")
	}

	// Cheap pre-check before the external call; the transaction below
	// re-checks, so a race here is harmless.
	var used bool
	err := a.store.View(ctx, func(tx store.Tx) error {
		var err error
		used, err = tx.HasUsedToken(in.PurchaseToken)
		return err
	})
	if err != nil {
		return err
	}
	if used {
		return apperr.E(apperr.KindAlreadyExists, "This purchase has already been claimed.")
	}

	if a.verifier == nil {
		return apperr.E(apperr.KindInternal, "Could not verify with Google Play API.")
	}
	state, err := a.verifier.VerifyProduct(ctx, in.ProductID, in.PurchaseToken)
	if err != nil {
		slog.Error("purchase verification call failed", "product_id", in.ProductID, "err", err)
		return apperr.E(apperr.KindInternal, "Could not verify with Google Play API.")
	}
	if state != playclient.StatePurchased {
		return apperr.E(apperr.KindPermissionDenied, "Invalid or canceled purchase.")
	}

	isHighlight := strings.HasPrefix(in.ProductID, "highlight_")
	if isHighlight && in.ConfessionID == "" {
		return apperr.E(apperr.KindInvalidArgument, "Confession ID required for highlights.")
	}
	if !isHighlight && in.ProductID != creditProductID {
		return apperr.E(apperr.KindInvalidArgument, "Invalid product ID.")
	}

	now := a.now()
	return a.store.Update(ctx, func(tx store.Tx) error {
		used, err := tx.HasUsedToken(in.PurchaseToken)
		if err != nil {
			return err
		}
		if used {
			return apperr.E(apperr.KindAlreadyExists, "This purchase has already been claimed.")
		}

		if isHighlight {
			confession, found, err := tx.GetConfession(in.ConfessionID)
			if err != nil {
				return err
			}
			if !found {
				return apperr.E(apperr.KindNotFound, "Confession not found.")
			}
			duration := 24 * time.Hour
			if strings.Contains(in.ProductID, "48h") {
				duration = 48 * time.Hour
			}
			confession.IsHighlighted = true
			confession.HighlightEndTime = now.Add(duration)
			confession.IsTop = true
			confession.HighlightedBy = userID
			if err := tx.SaveConfession(confession); err != nil {
				return err
			}
		} else {
			user, _, err := tx.GetUser(userID)
			if err != nil {
				return err
			}
			user.ID = userID
			user.PaidConfessionCredits++
			if err := tx.SaveUser(user); err != nil {
				return err
			}
		}

		return tx.SaveUsedToken(domain.UsedToken{
			Token:     in.PurchaseToken,
			UserID:    userID,
			ProductID: in.ProductID,
			CreatedAt: now,
		})
	})
}

func (a *App) publish(ctx context.Context, ev events.Event) {
	if a.events == nil {
		return
	}
	if err := a.events.Publish(ctx, ev); err != nil {
		slog.Error("publish event", "type", ev.Type, "confession_id", ev.ConfessionID, "err", err)
	}
}

// contentLength counts UTF-16 code units, matching how clients measure
// the 500-character limit.
func contentLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}
