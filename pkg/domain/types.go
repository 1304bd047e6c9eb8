package domain

import "time"

// ReactionKind is one of the fixed emotional-response categories
// attachable to a confession. The set is part of the data contract.
type ReactionKind string

const (
	ReactionHeart ReactionKind = "heart"
	ReactionSad   ReactionKind = "sad"
	ReactionWow   ReactionKind = "wow"
	ReactionFire  ReactionKind = "fire"
)

// ReactionKinds lists every valid kind in a stable order.
var ReactionKinds = []ReactionKind{ReactionHeart, ReactionSad, ReactionWow, ReactionFire}

// ValidReactionKind reports whether k belongs to the fixed set.
func ValidReactionKind(k ReactionKind) bool {
	for _, kind := range ReactionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ZeroReactionCounts returns a counts map with every kind present at zero.
func ZeroReactionCounts() map[ReactionKind]int {
	counts := make(map[ReactionKind]int, len(ReactionKinds))
	for _, kind := range ReactionKinds {
		counts[kind] = 0
	}
	return counts
}

// NotificationSettings are per-category opt-outs. A nil pointer on any
// field means the category was never touched and defaults to enabled.
type NotificationSettings struct {
	Enabled             *bool `json:"enabled,omitempty"`
	NewConfessionAlerts *bool `json:"newConfessionAlerts,omitempty"`
	ReactionAlerts      *bool `json:"reactionAlerts,omitempty"`
	DailyReminders      *bool `json:"dailyReminders,omitempty"`
}

// NotificationCategory selects which per-category switch applies.
type NotificationCategory string

const (
	CategoryNewConfession NotificationCategory = "new_confession"
	CategoryReaction      NotificationCategory = "reaction"
	CategoryDailyReminder NotificationCategory = "daily_reminder"
)

// Allows reports whether the settings permit the given category.
func (s NotificationSettings) Allows(category NotificationCategory) bool {
	if s.Enabled != nil && !*s.Enabled {
		return false
	}
	switch category {
	case CategoryNewConfession:
		return s.NewConfessionAlerts == nil || *s.NewConfessionAlerts
	case CategoryReaction:
		return s.ReactionAlerts == nil || *s.ReactionAlerts
	case CategoryDailyReminder:
		return s.DailyReminders == nil || *s.DailyReminders
	}
	return false
}

// User holds per-caller counters and notification state. Users are never
// deleted by this service.
type User struct {
	ID                    string               `json:"id"`
	DailyPostCount        int                  `json:"dailyPostCount"`
	DailyReportCount      int                  `json:"dailyReportCount"`
	LastPostTime          time.Time            `json:"lastPostTime,omitempty"`
	LastReportTime        time.Time            `json:"lastReportTime,omitempty"`
	LastNotificationTime  time.Time            `json:"lastNotificationTime,omitempty"`
	PaidConfessionCredits int                  `json:"paidConfessionCredits"`
	NotificationSettings  NotificationSettings `json:"notificationSettings"`
	PushToken             string               `json:"-"`
}

// Confession is the posted item. Created once, mutated only through the
// gates, never deleted by this service.
type Confession struct {
	ID               string               `json:"id"`
	Content          string               `json:"content"`
	Category         string               `json:"category"`
	UserID           string               `json:"userId"`
	City             string               `json:"city,omitempty"`
	State            string               `json:"state,omitempty"`
	Country          string               `json:"country,omitempty"`
	ReactionCounts   map[ReactionKind]int `json:"reactionCounts"`
	ReportCount      int                  `json:"reportCount"`
	IsTop            bool                 `json:"isTop"`
	IsHighlighted    bool                 `json:"isHighlighted"`
	HighlightEndTime time.Time            `json:"highlightEndTime,omitempty"`
	HighlightedBy    string               `json:"highlightedBy,omitempty"`
	IsPaid           bool                 `json:"isPaid"`
	CreatedAt        time.Time            `json:"createdAt"`
}

// Reaction is keyed by (confessionID, userID): at most one live reaction
// per user per confession. Its presence is the source of truth for the
// per-user reaction state.
type Reaction struct {
	ConfessionID string       `json:"confessionId"`
	UserID       string       `json:"userId"`
	Kind         ReactionKind `json:"reactionType"`
	CreatedAt    time.Time    `json:"timestamp"`
}

// Report is keyed by (confessionID, userID), append-only.
type Report struct {
	ConfessionID string    `json:"confessionId"`
	ReporterID   string    `json:"reporterId"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"timestamp"`
}

// UsedToken marks a purchase token as claimed. Append-only; a token is
// claimed at most once, ever.
type UsedToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	CreatedAt time.Time `json:"timestamp"`
}
