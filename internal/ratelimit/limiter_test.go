package ratelimit

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/domain"
)

var testLimits = FixedLimits{DailyMax: 20, WeeklyMax: 100}

// noon keeps test instants away from day boundaries.
var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

// limiters returns every backend that can run without a database.
func limiters(t *testing.T, limits LimitsProvider) map[string]Limiter {
	t.Helper()
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)
	return map[string]Limiter{
		"memory": NewMemoryLimiter(limits, nil),
		"redis":  NewRedisLimiter(client, limits, nil),
	}
}

func admitN(t *testing.T, l Limiter, account string, now time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		adm, err := l.TryAdmit(context.Background(), account, domain.ActionClassConnect, now)
		if err != nil {
			t.Fatalf("TryAdmit() error: %v", err)
		}
		if !adm.Admitted {
			t.Fatalf("TryAdmit() #%d rejected: %s", i+1, adm.Reason)
		}
	}
}

func TestDailyLimit(t *testing.T) {
	for name, l := range limiters(t, testLimits) {
		t.Run(name, func(t *testing.T) {
			admitN(t, l, "acct-1", noon, 20)

			adm, err := l.TryAdmit(context.Background(), "acct-1", domain.ActionClassConnect, noon)
			if err != nil {
				t.Fatalf("TryAdmit() error: %v", err)
			}
			if adm.Admitted || adm.Reason != domain.PauseDailyLimit {
				t.Fatalf("got %+v, want DAILY_LIMIT rejection", adm)
			}
			if adm.DailyCount != 20 {
				t.Errorf("DailyCount = %d, want 20", adm.DailyCount)
			}
			wantRetry := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
			if !adm.RetryAfter.Equal(wantRetry) {
				t.Errorf("RetryAfter = %v, want %v", adm.RetryAfter, wantRetry)
			}

			// Rejection has no side effect.
			u, err := l.Usage(context.Background(), "acct-1", noon)
			if err != nil {
				t.Fatalf("Usage() error: %v", err)
			}
			if u.DailyCount != 20 || !u.DailyExhausted() {
				t.Errorf("usage = %+v", u)
			}

			// The next day has a fresh bucket.
			admitN(t, l, "acct-1", noon.Add(24*time.Hour), 1)
		})
	}
}

func TestWeeklyLimit(t *testing.T) {
	for name, l := range limiters(t, testLimits) {
		t.Run(name, func(t *testing.T) {
			for d := 5; d >= 1; d-- {
				admitN(t, l, "acct-1", noon.AddDate(0, 0, -d), 20)
			}

			adm, err := l.TryAdmit(context.Background(), "acct-1", domain.ActionClassConnect, noon)
			if err != nil {
				t.Fatalf("TryAdmit() error: %v", err)
			}
			if adm.Admitted || adm.Reason != domain.PauseWeeklyLimit {
				t.Fatalf("got %+v, want WEEKLY_LIMIT rejection", adm)
			}
			if adm.DailyCount != 0 || adm.WeeklyCount != 100 {
				t.Errorf("counts = %d/%d, want 0/100", adm.DailyCount, adm.WeeklyCount)
			}
			// The oldest bucket (5 days back) leaves the window in 2 days.
			wantRetry := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
			if !adm.RetryAfter.Equal(wantRetry) {
				t.Errorf("RetryAfter = %v, want %v", adm.RetryAfter, wantRetry)
			}

			// Rolling, not calendar: two days later the oldest bucket is gone.
			admitN(t, l, "acct-1", noon.AddDate(0, 0, 2), 1)
		})
	}
}

func TestDailyWinsTieBreak(t *testing.T) {
	limits := FixedLimits{DailyMax: 5, WeeklyMax: 5}
	for name, l := range limiters(t, limits) {
		t.Run(name, func(t *testing.T) {
			admitN(t, l, "acct-1", noon, 5)
			adm, err := l.TryAdmit(context.Background(), "acct-1", domain.ActionClassConnect, noon)
			if err != nil {
				t.Fatalf("TryAdmit() error: %v", err)
			}
			if adm.Reason != domain.PauseDailyLimit {
				t.Errorf("Reason = %s, want DAILY_LIMIT", adm.Reason)
			}
		})
	}
}

func TestUncappedClass(t *testing.T) {
	for name, l := range limiters(t, FixedLimits{DailyMax: 0, WeeklyMax: 0}) {
		t.Run(name, func(t *testing.T) {
			adm, err := l.TryAdmit(context.Background(), "acct-1", domain.ActionClass(domain.StepMessage), noon)
			if err != nil {
				t.Fatalf("TryAdmit() error: %v", err)
			}
			if !adm.Admitted {
				t.Error("uncapped class should always be admitted")
			}
		})
	}
}

func TestEmptyAccount(t *testing.T) {
	for name, l := range limiters(t, testLimits) {
		t.Run(name, func(t *testing.T) {
			if _, err := l.TryAdmit(context.Background(), "", domain.ActionClassConnect, noon); err != ErrEmptyAccount {
				t.Errorf("err = %v, want ErrEmptyAccount", err)
			}
		})
	}
}

func TestConcurrentAdmissionNeverOverAdmits(t *testing.T) {
	for name, l := range limiters(t, testLimits) {
		t.Run(name, func(t *testing.T) {
			var admitted int64
			var wg sync.WaitGroup
			for i := 0; i < 60; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					adm, err := l.TryAdmit(context.Background(), "acct-1", domain.ActionClassConnect, noon)
					if err != nil {
						t.Errorf("TryAdmit() error: %v", err)
						return
					}
					if adm.Admitted {
						atomic.AddInt64(&admitted, 1)
					}
				}()
			}
			wg.Wait()

			if admitted != 20 {
				t.Errorf("admitted %d, want exactly 20", admitted)
			}
		})
	}
}

func TestAccountsAreIndependent(t *testing.T) {
	for name, l := range limiters(t, testLimits) {
		t.Run(name, func(t *testing.T) {
			admitN(t, l, "acct-1", noon, 20)
			admitN(t, l, "acct-2", noon, 20)
		})
	}
}

func TestStaticLimits(t *testing.T) {
	s := StaticLimits{
		DefaultTier: "free",
		Tiers: map[string]domain.AccountLimits{
			"free":    {DailyMax: 20, WeeklyMax: 100},
			"premium": {DailyMax: 40, WeeklyMax: 200},
		},
		Accounts: map[string]string{"acct-p": "premium", "acct-x": "missing"},
	}
	ctx := context.Background()

	if l, err := s.AccountLimits(ctx, "acct-p"); err != nil || l.DailyMax != 40 {
		t.Errorf("premium = %+v, %v", l, err)
	}
	if l, err := s.AccountLimits(ctx, "acct-other"); err != nil || l.WeeklyMax != 100 {
		t.Errorf("default = %+v, %v", l, err)
	}
	if _, err := s.AccountLimits(ctx, "acct-x"); err == nil {
		t.Error("unknown tier should error")
	}
	if l, err := (StaticLimits{}).AccountLimits(ctx, "any"); err != nil || l != DefaultLimits {
		t.Errorf("empty config = %+v, %v", l, err)
	}
}

func TestCapacity(t *testing.T) {
	l := NewMemoryLimiter(testLimits, nil)
	l.Seed("acct-1", domain.ActionClassConnect, noon, 20)
	l.Seed("acct-2", domain.ActionClassConnect, noon, 5)

	c, err := Capacity(context.Background(), l, []string{"acct-1", "acct-2"}, noon)
	if err != nil {
		t.Fatalf("Capacity() error: %v", err)
	}
	if c.DailyCapacity != 40 || c.WeeklyCapacity != 200 {
		t.Errorf("capacity = %d/%d, want 40/200", c.DailyCapacity, c.WeeklyCapacity)
	}
	if c.DailyUsed != 25 {
		t.Errorf("DailyUsed = %d, want 25", c.DailyUsed)
	}
	if c.Blocked {
		t.Error("campaign with one free account should not be blocked")
	}

	l.Seed("acct-2", domain.ActionClassConnect, noon, 20)
	c, _ = Capacity(context.Background(), l, []string{"acct-1", "acct-2"}, noon)
	if !c.Blocked {
		t.Error("campaign with every account exhausted should be blocked")
	}
}

func TestPGLimiter_Admit(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	l := NewPGLimiter(db, testLimits, nil)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(lockID("acct-1", domain.ActionClassConnect)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT day, sent_count FROM rate_limit_windows").
		WithArgs("acct-1", "connect", "2026-03-04", "2026-03-10").
		WillReturnRows(sqlmock.NewRows([]string{"day", "sent_count"}).
			AddRow(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), 3).
			AddRow(time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), 10))
	mock.ExpectExec("INSERT INTO rate_limit_windows").
		WithArgs("acct-1", "connect", "2026-03-10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	adm, err := l.TryAdmit(context.Background(), "acct-1", domain.ActionClassConnect, noon)
	if err != nil {
		t.Fatalf("TryAdmit() error: %v", err)
	}
	if !adm.Admitted || adm.DailyCount != 4 || adm.WeeklyCount != 14 {
		t.Errorf("got %+v", adm)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPGLimiter_RejectDoesNotIncrement(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	l := NewPGLimiter(db, testLimits, nil)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"day", "sent_count"})
	for d := 1; d <= 5; d++ {
		rows.AddRow(time.Date(2026, 3, 10-d, 0, 0, 0, 0, time.UTC), 20)
	}
	mock.ExpectQuery("SELECT day, sent_count FROM rate_limit_windows").WillReturnRows(rows)
	mock.ExpectRollback()

	adm, err := l.TryAdmit(context.Background(), "acct-1", domain.ActionClassConnect, noon)
	if err != nil {
		t.Fatalf("TryAdmit() error: %v", err)
	}
	if adm.Admitted || adm.Reason != domain.PauseWeeklyLimit {
		t.Errorf("got %+v, want WEEKLY_LIMIT rejection", adm)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
