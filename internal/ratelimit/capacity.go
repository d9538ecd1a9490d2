package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// CampaignCapacity is the operator-facing capacity of a campaign: the sum of
// its active accounts' caps and counts. Admission is still decided per
// account; Blocked is true only when every account is exhausted.
type CampaignCapacity struct {
	DailyCapacity  int            `json:"daily_capacity"`
	WeeklyCapacity int            `json:"weekly_capacity"`
	DailyUsed      int            `json:"daily_used"`
	WeeklyUsed     int            `json:"weekly_used"`
	Blocked        bool           `json:"blocked"`
	Accounts       []domain.Usage `json:"accounts"`
}

// Capacity aggregates usage over accountIDs.
func Capacity(ctx context.Context, limiter Limiter, accountIDs []string, now time.Time) (CampaignCapacity, error) {
	c := CampaignCapacity{Accounts: make([]domain.Usage, 0, len(accountIDs))}
	exhausted := 0
	for _, id := range accountIDs {
		u, err := limiter.Usage(ctx, id, now)
		if err != nil {
			return CampaignCapacity{}, fmt.Errorf("usage for %s: %w", id, err)
		}
		c.Accounts = append(c.Accounts, u)
		c.DailyCapacity += u.Limits.DailyMax
		c.WeeklyCapacity += u.Limits.WeeklyMax
		c.DailyUsed += u.DailyCount
		c.WeeklyUsed += u.WeeklyCount
		if u.DailyExhausted() || u.WeeklyExhausted() {
			exhausted++
		}
	}
	c.Blocked = len(accountIDs) > 0 && exhausted == len(accountIDs)
	return c, nil
}
