// Package ratelimit admits or rejects capped outreach actions (LinkedIn
// connection requests) per sending account. Every backend checks the daily
// bucket and the trailing 7-day window and increments today's bucket in one
// atomic unit, so concurrent sweeps can never over-admit an account.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// WindowDays is the length of the rolling weekly window, today included.
const WindowDays = 7

var (
	ErrEmptyAccount = errors.New("account id is required")
	ErrUnknownTier  = errors.New("unknown account tier")
)

// Limiter is the admission contract consumed by the sequencer and by channel
// workers before they send.
type Limiter interface {
	// TryAdmit decides whether accountID may perform one action of class at
	// now. On admission today's counter is incremented as part of the same
	// decision. A rejection is a normal result, not an error.
	TryAdmit(ctx context.Context, accountID string, class domain.ActionClass, now time.Time) (domain.Admission, error)
	// Usage reports the account's current daily and weekly counts.
	Usage(ctx context.Context, accountID string, now time.Time) (domain.Usage, error)
}

// Window maps instants to day buckets in a fixed location.
type Window struct {
	Location *time.Location
}

func (w Window) loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// StartOfDay returns midnight of the day containing t.
func (w Window) StartOfDay(t time.Time) time.Time {
	t = t.In(w.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, w.loc())
}

// Days returns the WindowDays bucket dates ending with today, newest first.
func (w Window) Days(now time.Time) []time.Time {
	today := w.StartOfDay(now)
	days := make([]time.Time, WindowDays)
	for i := range days {
		days[i] = today.AddDate(0, 0, -i)
	}
	return days
}

// DayKey formats a bucket date.
func DayKey(day time.Time) string {
	return day.Format("2006-01-02")
}

// decide applies the admission rule to the bucket counts of one account,
// newest first. Daily exhaustion wins the tie-break over weekly.
func (w Window) decide(accountID string, limits domain.AccountLimits, counts []int, now time.Time) domain.Admission {
	daily, weekly := 0, 0
	if len(counts) > 0 {
		daily = counts[0]
	}
	oldest := -1
	for i, c := range counts {
		weekly += c
		if c > 0 {
			oldest = i
		}
	}

	switch {
	case daily >= limits.DailyMax:
		return domain.Rejected(accountID, domain.PauseDailyLimit, daily, weekly, w.nextDay(now))
	case weekly >= limits.WeeklyMax:
		return domain.Rejected(accountID, domain.PauseWeeklyLimit, daily, weekly, w.weeklyRelease(now, oldest))
	}
	return domain.Admitted(accountID, daily+1, weekly+1)
}

func (w Window) nextDay(now time.Time) time.Time {
	return w.StartOfDay(now).AddDate(0, 0, 1)
}

// weeklyRelease returns when the oldest non-empty bucket (oldest days back
// from today) leaves the window.
func (w Window) weeklyRelease(now time.Time, oldest int) time.Time {
	if oldest < 0 {
		return w.nextDay(now)
	}
	return w.StartOfDay(now).AddDate(0, 0, WindowDays-oldest)
}

func usage(accountID string, limits domain.AccountLimits, counts []int) domain.Usage {
	u := domain.Usage{AccountID: accountID, Limits: limits}
	for i, c := range counts {
		if i == 0 {
			u.DailyCount = c
		}
		u.WeeklyCount += c
	}
	return u
}

// uncapped is the admission returned for classes this layer does not limit.
func uncapped(accountID string) domain.Admission {
	return domain.Admission{Admitted: true, AccountID: accountID}
}
