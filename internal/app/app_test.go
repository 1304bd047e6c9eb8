package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"confessly/internal/apperr"
	"confessly/internal/events"
	"confessly/internal/filter"
	"confessly/internal/playclient"
	"confessly/internal/store"
	"confessly/pkg/domain"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) byType(t string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeVerifier struct {
	state int
	err   error
}

func (v *fakeVerifier) VerifyProduct(context.Context, string, string) (int, error) {
	return v.state, v.err
}

type fixture struct {
	app   *App
	store *store.MemoryStore
	bus   *fakePublisher
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f, err := filter.New()
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	fx := &fixture{
		store: store.NewMemoryStore(),
		bus:   &fakePublisher{},
		now:   time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC),
	}
	fx.app = New(Config{
		Store:    fx.store,
		Filter:   f,
		Verifier: &fakeVerifier{state: playclient.StatePurchased},
		Events:   fx.bus,
		Now:      func() time.Time { return fx.now },
	})
	return fx
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) submit(t *testing.T, userID, content string) (domain.Confession, error) {
	t.Helper()
	return f.app.SubmitConfession(context.Background(), userID, SubmitConfessionInput{
		Content:  content,
		Category: "life",
	})
}

func (f *fixture) user(t *testing.T, id string) domain.User {
	t.Helper()
	var user domain.User
	if err := f.store.View(context.Background(), func(tx store.Tx) error {
		u, _, err := tx.GetUser(id)
		user = u
		return err
	}); err != nil {
		t.Fatalf("read user %s: %v", id, err)
	}
	return user
}

func (f *fixture) confession(t *testing.T, id string) domain.Confession {
	t.Helper()
	c, found, err := f.store.GetConfession(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("read confession %s: found=%v err=%v", id, found, err)
	}
	return c
}

func TestSubmitConfessionFreePath(t *testing.T) {
	fx := newFixture(t)

	c, err := fx.submit(t, "u-1", "something honest")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.ID == "" || c.Content != "something honest" || c.Category != "life" {
		t.Fatalf("confession = %+v", c)
	}
	for _, kind := range domain.ReactionKinds {
		if c.ReactionCounts[kind] != 0 {
			t.Fatalf("reaction counts not zeroed: %v", c.ReactionCounts)
		}
	}

	user := fx.user(t, "u-1")
	if user.DailyPostCount != 1 || !user.LastPostTime.Equal(fx.now) {
		t.Fatalf("counters = %d / %v", user.DailyPostCount, user.LastPostTime)
	}
	if got := fx.bus.byType(events.TypeConfessionCreated); len(got) != 1 || got[0].ConfessionID != c.ID {
		t.Fatalf("confession events = %+v", got)
	}
}

func TestSubmitConfessionRequiresAuthAndFields(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.submit(t, "", "hi"); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("no auth: %v", err)
	}
	if _, err := fx.submit(t, "u-1", "   "); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("blank content: %v", err)
	}
	if _, err := fx.app.SubmitConfession(context.Background(), "u-1", SubmitConfessionInput{Content: "hi"}); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("missing category: %v", err)
	}
}

func TestSubmitConfessionLengthLimit(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.submit(t, "u-1", strings.Repeat("a", 500)); err != nil {
		t.Fatalf("500 chars should pass: %v", err)
	}
	_, err := fx.submit(t, "u-2", strings.Repeat("a", 501))
	if apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("501 chars: %v", err)
	}

	// Astral-plane runes count as two units each, like client-side length.
	_, err = fx.submit(t, "u-3", strings.Repeat("\U0001F600", 251))
	if apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("251 emoji (502 units): %v", err)
	}
	if _, err := fx.submit(t, "u-4", strings.Repeat("\U0001F600", 250)); err != nil {
		t.Fatalf("250 emoji (500 units) should pass: %v", err)
	}
}

func TestSubmitConfessionProfanity(t *testing.T) {
	fx := newFixture(t)

	cases := []string{
		"this is sh1t",      // leetspeak digit
		"what the FUCK",     // case
		"t0tal b!tch move",  // mixed substitutions
		"f-u-c-k this town", // separators stripped by normalization
	}
	for _, content := range cases {
		_, err := fx.submit(t, "u-1", content)
		if apperr.KindOf(err) != apperr.KindInvalidArgument {
			t.Fatalf("content %q: err = %v", content, err)
		}
	}
	if _, err := fx.submit(t, "u-1", "a perfectly ordinary day"); err != nil {
		t.Fatalf("clean content rejected: %v", err)
	}
}

func TestSubmitConfessionCooldown(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.submit(t, "u-1", "first"); err != nil {
		t.Fatalf("first: %v", err)
	}
	fx.advance(3 * time.Minute)
	_, err := fx.submit(t, "u-1", "second")
	if apperr.KindOf(err) != apperr.KindResourceExhausted {
		t.Fatalf("within cooldown: %v", err)
	}
	if !strings.Contains(err.Error(), "7 minutes") {
		t.Fatalf("message = %q", err.Error())
	}

	fx.advance(7 * time.Minute)
	if _, err := fx.submit(t, "u-1", "second"); err != nil {
		t.Fatalf("after cooldown: %v", err)
	}
}

func TestSubmitConfessionDailyLimitAndReset(t *testing.T) {
	fx := newFixture(t)

	for i := 0; i < 5; i++ {
		if _, err := fx.submit(t, "u-1", "post"); err != nil {
			t.Fatalf("post %d: %v", i+1, err)
		}
		fx.advance(11 * time.Minute)
	}
	_, err := fx.submit(t, "u-1", "one too many")
	if apperr.KindOf(err) != apperr.KindResourceExhausted {
		t.Fatalf("sixth post: %v", err)
	}
	if err.Error() != "Daily limit reached for today." {
		t.Fatalf("message = %q", err.Error())
	}

	// Just past the reset window since the last post, the counter reads
	// zero again.
	fx.advance(12*time.Hour + time.Minute)
	if _, err := fx.submit(t, "u-1", "fresh window"); err != nil {
		t.Fatalf("after reset window: %v", err)
	}
	if got := fx.user(t, "u-1").DailyPostCount; got != 1 {
		t.Fatalf("count after reset = %d, want 1", got)
	}
}

func TestSubmitConfessionPaidPath(t *testing.T) {
	fx := newFixture(t)

	paid := SubmitConfessionInput{Content: "premium thought", Category: "life", IsPaid: true}
	_, err := fx.app.SubmitConfession(context.Background(), "u-1", paid)
	if apperr.KindOf(err) != apperr.KindFailedPrecondition {
		t.Fatalf("no credits: %v", err)
	}

	if err := fx.store.Update(context.Background(), func(tx store.Tx) error {
		return tx.SaveUser(domain.User{ID: "u-1", PaidConfessionCredits: 2})
	}); err != nil {
		t.Fatalf("seed credits: %v", err)
	}

	c, err := fx.app.SubmitConfession(context.Background(), "u-1", paid)
	if err != nil {
		t.Fatalf("paid submit: %v", err)
	}
	if !c.IsPaid {
		t.Fatalf("confession not marked paid")
	}
	user := fx.user(t, "u-1")
	if user.PaidConfessionCredits != 1 {
		t.Fatalf("credits = %d, want 1", user.PaidConfessionCredits)
	}
	// Paid posts skip the cooldown and leave free-path counters alone.
	if user.DailyPostCount != 0 || !user.LastPostTime.IsZero() {
		t.Fatalf("paid post touched free counters: %+v", user)
	}
	if _, err := fx.app.SubmitConfession(context.Background(), "u-1", paid); err != nil {
		t.Fatalf("second paid submit within cooldown: %v", err)
	}
}

func TestToggleReactionLifecycle(t *testing.T) {
	fx := newFixture(t)
	c, err := fx.submit(t, "author", "react to me")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx := context.Background()

	action, err := fx.app.ToggleReaction(ctx, "u-1", c.ID, domain.ReactionHeart)
	if err != nil || action != domain.ToggleAdded {
		t.Fatalf("add: action=%s err=%v", action, err)
	}
	if got := fx.confession(t, c.ID).ReactionCounts[domain.ReactionHeart]; got != 1 {
		t.Fatalf("heart count = %d, want 1", got)
	}

	action, err = fx.app.ToggleReaction(ctx, "u-1", c.ID, domain.ReactionFire)
	if err != nil || action != domain.ToggleChanged {
		t.Fatalf("change: action=%s err=%v", action, err)
	}
	counts := fx.confession(t, c.ID).ReactionCounts
	if counts[domain.ReactionHeart] != 0 || counts[domain.ReactionFire] != 1 {
		t.Fatalf("counts after change = %v", counts)
	}

	action, err = fx.app.ToggleReaction(ctx, "u-1", c.ID, domain.ReactionFire)
	if err != nil || action != domain.ToggleRemoved {
		t.Fatalf("remove: action=%s err=%v", action, err)
	}
	counts = fx.confession(t, c.ID).ReactionCounts
	for kind, n := range counts {
		if n != 0 {
			t.Fatalf("count %s = %d after full cycle, want 0", kind, n)
		}
	}

	// Only the add publishes; change and remove stay silent.
	if got := fx.bus.byType(events.TypeReactionCreated); len(got) != 1 {
		t.Fatalf("reaction events = %+v", got)
	}
}

func TestToggleReactionValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.app.ToggleReaction(ctx, "", "c-1", domain.ReactionHeart); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("no auth: %v", err)
	}
	if _, err := fx.app.ToggleReaction(ctx, "u-1", "", domain.ReactionHeart); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("missing confession id: %v", err)
	}
	if _, err := fx.app.ToggleReaction(ctx, "u-1", "c-1", "thumbsup"); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("invalid kind: %v", err)
	}
	if _, err := fx.app.ToggleReaction(ctx, "u-1", "missing", domain.ReactionHeart); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing confession: %v", err)
	}
}

func TestToggleReactionConcurrentUsers(t *testing.T) {
	fx := newFixture(t)
	c, err := fx.submit(t, "author", "popular take")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	const users = 20
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := "u-" + string(rune('a'+i))
			if _, err := fx.app.ToggleReaction(context.Background(), userID, c.ID, domain.ReactionHeart); err != nil {
				t.Errorf("toggle %s: %v", userID, err)
			}
		}(i)
	}
	wg.Wait()

	if got := fx.confession(t, c.ID).ReactionCounts[domain.ReactionHeart]; got != users {
		t.Fatalf("heart count = %d, want %d", got, users)
	}
}

func TestSubmitReport(t *testing.T) {
	fx := newFixture(t)
	c, err := fx.submit(t, "author", "reportable")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	ctx := context.Background()

	if err := fx.app.SubmitReport(ctx, "u-1", c.ID, "spam"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if got := fx.confession(t, c.ID).ReportCount; got != 1 {
		t.Fatalf("report count = %d, want 1", got)
	}

	err = fx.app.SubmitReport(ctx, "u-1", c.ID, "spam again")
	if apperr.KindOf(err) != apperr.KindAlreadyExists {
		t.Fatalf("duplicate report: %v", err)
	}
	if got := fx.confession(t, c.ID).ReportCount; got != 1 {
		t.Fatalf("duplicate bumped count to %d", got)
	}

	if err := fx.app.SubmitReport(ctx, "u-1", "missing", "spam"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("missing confession: %v", err)
	}
	if err := fx.app.SubmitReport(ctx, "u-1", c.ID, " "); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("blank reason: %v", err)
	}
}

func TestSubmitReportDailyLimit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		c, err := fx.submit(t, "author-"+string(rune('a'+i)), "post")
		if err != nil {
			t.Fatalf("seed confession: %v", err)
		}
		ids = append(ids, c.ID)
	}

	for i := 0; i < 5; i++ {
		if err := fx.app.SubmitReport(ctx, "reporter", ids[i], "spam"); err != nil {
			t.Fatalf("report %d: %v", i+1, err)
		}
	}
	err := fx.app.SubmitReport(ctx, "reporter", ids[5], "spam")
	if apperr.KindOf(err) != apperr.KindResourceExhausted {
		t.Fatalf("sixth report: %v", err)
	}
	if err.Error() != "Daily report limit reached." {
		t.Fatalf("message = %q", err.Error())
	}

	fx.advance(12*time.Hour + time.Minute)
	if err := fx.app.SubmitReport(ctx, "reporter", ids[5], "spam"); err != nil {
		t.Fatalf("report after reset: %v", err)
	}
}

func TestVerifyPurchaseCredit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	in := VerifyPurchaseInput{ProductID: "paid_confession_10", PurchaseToken: "tok-1"}

	if err := fx.app.VerifyPurchase(ctx, "u-1", in); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := fx.user(t, "u-1").PaidConfessionCredits; got != 1 {
		t.Fatalf("credits = %d, want 1", got)
	}

	err := fx.app.VerifyPurchase(ctx, "u-1", in)
	if apperr.KindOf(err) != apperr.KindAlreadyExists {
		t.Fatalf("replayed token: %v", err)
	}
	if got := fx.user(t, "u-1").PaidConfessionCredits; got != 1 {
		t.Fatalf("replay paid out again: credits = %d", got)
	}
}

func TestVerifyPurchaseHighlight(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	c, err := fx.submit(t, "author", "highlight me")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	err = fx.app.VerifyPurchase(ctx, "buyer", VerifyPurchaseInput{
		ProductID:     "highlight_48h",
		PurchaseToken: "tok-h",
		ConfessionID:  c.ID,
	})
	if err != nil {
		t.Fatalf("verify highlight: %v", err)
	}
	got := fx.confession(t, c.ID)
	if !got.IsHighlighted || !got.IsTop || got.HighlightedBy != "buyer" {
		t.Fatalf("highlight fields = %+v", got)
	}
	if want := fx.now.Add(48 * time.Hour); !got.HighlightEndTime.Equal(want) {
		t.Fatalf("end time = %v, want %v", got.HighlightEndTime, want)
	}

	err = fx.app.VerifyPurchase(ctx, "buyer", VerifyPurchaseInput{ProductID: "highlight_24h", PurchaseToken: "tok-h2"})
	if apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("highlight without confession id: %v", err)
	}
}

func TestVerifyPurchaseRejections(t *testing.T) {
	f, err := filter.New()
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	ctx := context.Background()
	in := VerifyPurchaseInput{ProductID: "paid_confession_10", PurchaseToken: "tok"}

	canceled := New(Config{
		Store:    store.NewMemoryStore(),
		Filter:   f,
		Verifier: &fakeVerifier{state: playclient.StateCanceled},
	})
	if err := canceled.VerifyPurchase(ctx, "u-1", in); apperr.KindOf(err) != apperr.KindPermissionDenied {
		t.Fatalf("canceled purchase: %v", err)
	}

	pending := New(Config{
		Store:    store.NewMemoryStore(),
		Filter:   f,
		Verifier: &fakeVerifier{state: playclient.StatePending},
	})
	if err := pending.VerifyPurchase(ctx, "u-1", in); apperr.KindOf(err) != apperr.KindPermissionDenied {
		t.Fatalf("pending purchase: %v", err)
	}

	broken := New(Config{
		Store:    store.NewMemoryStore(),
		Filter:   f,
		Verifier: &fakeVerifier{err: errors.New("api down")},
	})
	if err := broken.VerifyPurchase(ctx, "u-1", in); apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("authority failure: %v", err)
	}

	fx := newFixture(t)
	err = fx.app.VerifyPurchase(ctx, "u-1", VerifyPurchaseInput{ProductID: "mystery_box", PurchaseToken: "tok"})
	if apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("unknown product: %v", err)
	}
	if err := fx.app.VerifyPurchase(ctx, "u-1", VerifyPurchaseInput{ProductID: "paid_confession_10"}); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("missing token: %v", err)
	}
}
