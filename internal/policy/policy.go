// Package policy holds the pure rate/cooldown decision functions. They
// operate on a user's raw counters and timestamps at decision time; no
// background job ever resets anything.
package policy

import (
	"math"
	"time"

	"confessly/internal/apperr"
	"confessly/pkg/domain"
)

const (
	// DailyPostLimit caps free-path submissions per window.
	DailyPostLimit = 5
	// DailyReportLimit caps reports per window.
	DailyReportLimit = 5
	// PostCooldown is the minimum gap between free-path submissions.
	PostCooldown = 10 * time.Minute
	// ResetWindow is how long after the last action the daily counter
	// reads as zero again.
	ResetWindow = 12 * time.Hour
)

// EffectiveDailyCount applies the read-time auto-reset: a counter is zero
// once more than the reset window has elapsed since the last action.
func EffectiveDailyCount(now, last time.Time, count int) int {
	if last.IsZero() {
		return 0
	}
	if now.Sub(last) > ResetWindow {
		return 0
	}
	return count
}

// CheckPost decides whether a submission is allowed. Paid submissions
// spend a credit and skip quota; free ones are bounded by the daily cap
// and the cooldown.
func CheckPost(now time.Time, user domain.User, paid bool) error {
	if paid {
		if user.PaidConfessionCredits <= 0 {
			return apperr.E(apperr.KindFailedPrecondition, "No paid credits available.")
		}
		return nil
	}
	if EffectiveDailyCount(now, user.LastPostTime, user.DailyPostCount) >= DailyPostLimit {
		return apperr.E(apperr.KindResourceExhausted, "Daily limit reached for today.")
	}
	if !user.LastPostTime.IsZero() {
		elapsed := now.Sub(user.LastPostTime)
		if elapsed < PostCooldown {
			remaining := int(math.Ceil((PostCooldown - elapsed).Minutes()))
			return apperr.Ef(apperr.KindResourceExhausted, "Cooldown active. Try again in %d minutes.", remaining)
		}
	}
	return nil
}

// CheckReport decides whether a report is allowed. Reports share the
// daily-cap shape of submissions but have no cooldown between them.
func CheckReport(now time.Time, user domain.User) error {
	if EffectiveDailyCount(now, user.LastReportTime, user.DailyReportCount) >= DailyReportLimit {
		return apperr.E(apperr.KindResourceExhausted, "Daily report limit reached.")
	}
	return nil
}
