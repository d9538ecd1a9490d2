package ratelimit

import (
	"context"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
)

// DefaultLimits are the ceilings used when no tier is configured.
var DefaultLimits = domain.AccountLimits{DailyMax: 20, WeeklyMax: 100}

// LimitsProvider supplies account-tier ceilings. Ownership of the values
// stays with the account configuration; limiters only read them.
type LimitsProvider interface {
	AccountLimits(ctx context.Context, accountID string) (domain.AccountLimits, error)
}

// StaticLimits resolves limits from configured tiers.
type StaticLimits struct {
	DefaultTier string
	Tiers       map[string]domain.AccountLimits
	// Accounts maps an account id to its tier name.
	Accounts map[string]string
}

// AccountLimits returns the ceilings of the account's tier, falling back to
// the default tier and then to DefaultLimits.
func (s StaticLimits) AccountLimits(_ context.Context, accountID string) (domain.AccountLimits, error) {
	tier, ok := s.Accounts[accountID]
	if !ok {
		tier = s.DefaultTier
	}
	if tier == "" {
		return DefaultLimits, nil
	}
	limits, ok := s.Tiers[tier]
	if !ok {
		return domain.AccountLimits{}, fmt.Errorf("%w: %q for account %s", ErrUnknownTier, tier, accountID)
	}
	return limits, nil
}

// FixedLimits returns the same ceilings for every account.
type FixedLimits domain.AccountLimits

func (f FixedLimits) AccountLimits(context.Context, string) (domain.AccountLimits, error) {
	return domain.AccountLimits(f), nil
}
