package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/ratelimit"
)

// AccountLimitsRepo reads per-account overrides from account_limits and
// falls back to another provider (usually the configured tiers).
type AccountLimitsRepo struct {
	db       *sql.DB
	fallback ratelimit.LimitsProvider
}

// NewAccountLimitsRepo creates a limits provider. A nil fallback means
// ratelimit.DefaultLimits.
func NewAccountLimitsRepo(db *sql.DB, fallback ratelimit.LimitsProvider) *AccountLimitsRepo {
	if fallback == nil {
		fallback = ratelimit.FixedLimits(ratelimit.DefaultLimits)
	}
	return &AccountLimitsRepo{db: db, fallback: fallback}
}

func (r *AccountLimitsRepo) AccountLimits(ctx context.Context, accountID string) (domain.AccountLimits, error) {
	var l domain.AccountLimits
	err := r.db.QueryRowContext(ctx, `
		SELECT daily_max, weekly_max FROM account_limits WHERE account_id = $1
	`, accountID).Scan(&l.DailyMax, &l.WeeklyMax)
	if err == sql.ErrNoRows {
		return r.fallback.AccountLimits(ctx, accountID)
	}
	if err != nil {
		return domain.AccountLimits{}, fmt.Errorf("account limits: %w", err)
	}
	return l, nil
}

// SetAccountLimits upserts an account override.
func (r *AccountLimitsRepo) SetAccountLimits(ctx context.Context, accountID string, l domain.AccountLimits) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO account_limits (account_id, daily_max, weekly_max)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET daily_max = EXCLUDED.daily_max, weekly_max = EXCLUDED.weekly_max
	`, accountID, l.DailyMax, l.WeeklyMax)
	if err != nil {
		return fmt.Errorf("set account limits: %w", err)
	}
	return nil
}
