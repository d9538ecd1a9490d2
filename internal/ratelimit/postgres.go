package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// PGLimiter stores day buckets in the rate_limit_windows table. Each
// admission runs in a transaction holding a transaction-scoped advisory lock
// on the account, so concurrent callers for one account serialize while
// other accounts proceed in parallel.
type PGLimiter struct {
	db     *sql.DB
	limits LimitsProvider
	window Window
}

// NewPGLimiter creates a Postgres-backed limiter.
func NewPGLimiter(db *sql.DB, limits LimitsProvider, loc *time.Location) *PGLimiter {
	return &PGLimiter{db: db, limits: limits, window: Window{Location: loc}}
}

// lockID derives a deterministic advisory lock key for an account and class.
func lockID(accountID string, class domain.ActionClass) int64 {
	h := fnv.New64a()
	h.Write([]byte("ratelimit:" + accountID + ":" + string(class)))
	return int64(h.Sum64())
}

// TryAdmit implements Limiter.
func (l *PGLimiter) TryAdmit(ctx context.Context, accountID string, class domain.ActionClass, now time.Time) (domain.Admission, error) {
	if accountID == "" {
		return domain.Admission{}, ErrEmptyAccount
	}
	if !class.Capped() {
		return uncapped(accountID), nil
	}
	limits, err := l.limits.AccountLimits(ctx, accountID)
	if err != nil {
		return domain.Admission{}, fmt.Errorf("account limits: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Admission{}, fmt.Errorf("begin admission: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockID(accountID, class)); err != nil {
		return domain.Admission{}, fmt.Errorf("lock account %s: %w", accountID, err)
	}

	days := l.window.Days(now)
	counts, err := l.counts(ctx, tx, accountID, class, days)
	if err != nil {
		return domain.Admission{}, err
	}

	adm := l.window.decide(accountID, limits, counts, now)
	if !adm.Admitted {
		return adm, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_limit_windows (account_id, action_class, day, sent_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (account_id, action_class, day)
		DO UPDATE SET sent_count = rate_limit_windows.sent_count + 1`,
		accountID, string(class), DayKey(days[0]),
	)
	if err != nil {
		return domain.Admission{}, fmt.Errorf("increment window: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Admission{}, fmt.Errorf("commit admission: %w", err)
	}
	return adm, nil
}

// Usage implements Limiter.
func (l *PGLimiter) Usage(ctx context.Context, accountID string, now time.Time) (domain.Usage, error) {
	limits, err := l.limits.AccountLimits(ctx, accountID)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("account limits: %w", err)
	}
	counts, err := l.counts(ctx, l.db, accountID, domain.ActionClassConnect, l.window.Days(now))
	if err != nil {
		return domain.Usage{}, err
	}
	return usage(accountID, limits, counts), nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// counts loads the bucket counts for days (newest first) in the same order.
func (l *PGLimiter) counts(ctx context.Context, q querier, accountID string, class domain.ActionClass, days []time.Time) ([]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT day, sent_count FROM rate_limit_windows
		WHERE account_id = $1 AND action_class = $2 AND day BETWEEN $3 AND $4`,
		accountID, string(class), DayKey(days[len(days)-1]), DayKey(days[0]),
	)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int, len(days))
	for i, d := range days {
		index[DayKey(d)] = i
	}
	counts := make([]int, len(days))
	for rows.Next() {
		var day time.Time
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		if i, ok := index[day.Format("2006-01-02")]; ok {
			counts[i] = n
		}
	}
	return counts, rows.Err()
}
