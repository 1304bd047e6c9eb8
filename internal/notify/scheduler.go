package notify

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler fires the daily reminder at a fixed local wall-clock time.
type Scheduler struct {
	notifier *Notifier
	hour     int
	minute   int
}

// NewScheduler builds a scheduler firing at hour:minute in the
// notifier's timezone. Defaults to 20:00 when hour is out of range.
func NewScheduler(notifier *Notifier, hour, minute int) *Scheduler {
	if hour < 0 || hour > 23 {
		hour = 20
		minute = 0
	}
	if minute < 0 || minute > 59 {
		minute = 0
	}
	return &Scheduler{notifier: notifier, hour: hour, minute: minute}
}

// Start runs the schedule loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		for {
			wait := time.Until(s.nextRun(s.notifier.now()))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if err := s.notifier.RunDailyReminder(ctx); err != nil {
				slog.Error("daily reminder run failed", "err", err)
			}
		}
	}()
}

// nextRun returns the next hour:minute instant strictly after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	local := now.In(s.notifier.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.notifier.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
