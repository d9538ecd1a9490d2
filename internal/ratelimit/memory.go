package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// MemoryLimiter keeps counters in process. Each account has its own mutex,
// so one busy account never blocks admissions on another. Suitable for a
// single worker process and for tests.
type MemoryLimiter struct {
	limits LimitsProvider
	window Window

	mu       sync.Mutex
	accounts map[string]*accountWindow
}

type accountWindow struct {
	mu   sync.Mutex
	days map[string]int
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(limits LimitsProvider, loc *time.Location) *MemoryLimiter {
	return &MemoryLimiter{
		limits:   limits,
		window:   Window{Location: loc},
		accounts: make(map[string]*accountWindow),
	}
}

func (m *MemoryLimiter) account(accountID string, class domain.ActionClass) *accountWindow {
	key := accountID + ":" + string(class)
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.accounts[key]
	if !ok {
		w = &accountWindow{days: make(map[string]int)}
		m.accounts[key] = w
	}
	return w
}

// counts must be called with w.mu held. Buckets that left the window are
// dropped on the way.
func (w *accountWindow) counts(days []time.Time) []int {
	counts := make([]int, len(days))
	keep := make(map[string]bool, len(days))
	for i, d := range days {
		k := DayKey(d)
		counts[i] = w.days[k]
		keep[k] = true
	}
	for k := range w.days {
		if !keep[k] && k < DayKey(days[len(days)-1]) {
			delete(w.days, k)
		}
	}
	return counts
}

// TryAdmit implements Limiter.
func (m *MemoryLimiter) TryAdmit(ctx context.Context, accountID string, class domain.ActionClass, now time.Time) (domain.Admission, error) {
	if accountID == "" {
		return domain.Admission{}, ErrEmptyAccount
	}
	if !class.Capped() {
		return uncapped(accountID), nil
	}
	limits, err := m.limits.AccountLimits(ctx, accountID)
	if err != nil {
		return domain.Admission{}, fmt.Errorf("account limits: %w", err)
	}

	w := m.account(accountID, class)
	w.mu.Lock()
	defer w.mu.Unlock()

	days := m.window.Days(now)
	adm := m.window.decide(accountID, limits, w.counts(days), now)
	if adm.Admitted {
		w.days[DayKey(days[0])]++
	}
	return adm, nil
}

// Usage implements Limiter.
func (m *MemoryLimiter) Usage(ctx context.Context, accountID string, now time.Time) (domain.Usage, error) {
	limits, err := m.limits.AccountLimits(ctx, accountID)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("account limits: %w", err)
	}
	w := m.account(accountID, domain.ActionClassConnect)
	w.mu.Lock()
	defer w.mu.Unlock()
	return usage(accountID, limits, w.counts(m.window.Days(now))), nil
}

// Seed sets the count of one day bucket.
func (m *MemoryLimiter) Seed(accountID string, class domain.ActionClass, day time.Time, count int) {
	w := m.account(accountID, class)
	w.mu.Lock()
	w.days[DayKey(m.window.StartOfDay(day))] = count
	w.mu.Unlock()
}
