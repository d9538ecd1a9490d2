package domain

import "time"

// ActionClass groups actions that share a rate-limit budget.
type ActionClass string

// ActionClassConnect is currently the only capped class.
const ActionClassConnect ActionClass = "connect"

// Capped reports whether the class is subject to per-account limits.
func (c ActionClass) Capped() bool {
	return c == ActionClassConnect
}

// AccountLimits are the account-tier ceilings supplied by configuration.
type AccountLimits struct {
	DailyMax  int `json:"daily_max" yaml:"daily_max"`
	WeeklyMax int `json:"weekly_max" yaml:"weekly_max"`
}

// Admission is the outcome of a rate-limit admission check. A rejection is
// an expected outcome, not an error.
type Admission struct {
	Admitted    bool        `json:"admitted"`
	Reason      PauseReason `json:"reason,omitempty"`
	AccountID   string      `json:"account_id"`
	DailyCount  int         `json:"daily_count"`
	WeeklyCount int         `json:"weekly_count"`
	// RetryAfter is the earliest instant the rejected constraint can free a
	// slot. Zero when admitted.
	RetryAfter time.Time `json:"retry_after,omitempty"`
}

// Admitted returns an admission for accountID with the post-increment counts.
func Admitted(accountID string, daily, weekly int) Admission {
	return Admission{Admitted: true, AccountID: accountID, DailyCount: daily, WeeklyCount: weekly}
}

// Rejected returns a rejection for accountID.
func Rejected(accountID string, reason PauseReason, daily, weekly int, retryAfter time.Time) Admission {
	return Admission{
		AccountID:   accountID,
		Reason:      reason,
		DailyCount:  daily,
		WeeklyCount: weekly,
		RetryAfter:  retryAfter,
	}
}

// Usage is the current counter state of one account.
type Usage struct {
	AccountID   string        `json:"account_id"`
	DailyCount  int           `json:"daily_count"`
	WeeklyCount int           `json:"weekly_count"`
	Limits      AccountLimits `json:"limits"`
}

// DailyExhausted reports whether the daily cap is used up.
func (u Usage) DailyExhausted() bool { return u.DailyCount >= u.Limits.DailyMax }

// WeeklyExhausted reports whether the rolling 7-day cap is used up.
func (u Usage) WeeklyExhausted() bool { return u.WeeklyCount >= u.Limits.WeeklyMax }
