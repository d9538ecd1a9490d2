package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/domain"
)

// admitLuaScript checks the daily and rolling weekly counts and increments
// today's bucket only when both pass. KEYS are the 7 day buckets, today
// first. Returns {admitted, reason, daily, weekly, oldestNonEmpty}.
const admitLuaScript = `
local dailyMax = tonumber(ARGV[1])
local weeklyMax = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local daily = 0
local weekly = 0
local oldest = -1
for i = 1, #KEYS do
    local c = tonumber(redis.call("GET", KEYS[i]) or "0")
    if i == 1 then daily = c end
    weekly = weekly + c
    if c > 0 then oldest = i - 1 end
end

if daily >= dailyMax then
    return {0, 1, daily, weekly, oldest}  -- denied, daily limit
end
if weekly >= weeklyMax then
    return {0, 2, daily, weekly, oldest}  -- denied, weekly limit
end

local newDaily = redis.call("INCR", KEYS[1])
if newDaily == 1 then
    redis.call("EXPIRE", KEYS[1], ttl)
end
return {1, 0, newDaily, weekly + 1, oldest}
`

// bucketTTL keeps a day bucket alive until it has left the weekly window.
const bucketTTL = (WindowDays + 1) * 24 * time.Hour

// RedisLimiter keeps one counter per account per day in Redis and runs
// the admission check as a single Lua script.
type RedisLimiter struct {
	redis  *redis.Client
	limits LimitsProvider
	window Window
	script *redis.Script
}

// NewRedisLimiter creates a Redis-backed limiter. loc selects the day
// boundary; nil means UTC.
func NewRedisLimiter(client *redis.Client, limits LimitsProvider, loc *time.Location) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		limits: limits,
		window: Window{Location: loc},
		script: redis.NewScript(admitLuaScript),
	}
}

// keys returns the day bucket keys newest first. The account id is a hash
// tag so all buckets of one account live in the same cluster slot.
func (r *RedisLimiter) keys(accountID string, class domain.ActionClass, now time.Time) []string {
	days := r.window.Days(now)
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = fmt.Sprintf("ratelimit:{%s}:%s:%s", accountID, class, DayKey(d))
	}
	return keys
}

// TryAdmit implements Limiter.
func (r *RedisLimiter) TryAdmit(ctx context.Context, accountID string, class domain.ActionClass, now time.Time) (domain.Admission, error) {
	if accountID == "" {
		return domain.Admission{}, ErrEmptyAccount
	}
	if !class.Capped() {
		return uncapped(accountID), nil
	}
	limits, err := r.limits.AccountLimits(ctx, accountID)
	if err != nil {
		return domain.Admission{}, fmt.Errorf("account limits: %w", err)
	}

	result, err := r.script.Run(ctx, r.redis,
		r.keys(accountID, class, now),
		limits.DailyMax,
		limits.WeeklyMax,
		int(bucketTTL.Seconds()),
	).Slice()
	if err != nil {
		return domain.Admission{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) != 5 {
		return domain.Admission{}, fmt.Errorf("rate limit check failed: unexpected reply %v", result)
	}

	admitted, _ := result[0].(int64)
	reason, _ := result[1].(int64)
	daily, _ := result[2].(int64)
	weekly, _ := result[3].(int64)
	oldest, _ := result[4].(int64)

	if admitted == 1 {
		return domain.Admitted(accountID, int(daily), int(weekly)), nil
	}
	switch reason {
	case 1:
		return domain.Rejected(accountID, domain.PauseDailyLimit, int(daily), int(weekly), r.window.nextDay(now)), nil
	default:
		return domain.Rejected(accountID, domain.PauseWeeklyLimit, int(daily), int(weekly),
			r.window.weeklyRelease(now, int(oldest))), nil
	}
}

// Usage implements Limiter.
func (r *RedisLimiter) Usage(ctx context.Context, accountID string, now time.Time) (domain.Usage, error) {
	limits, err := r.limits.AccountLimits(ctx, accountID)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("account limits: %w", err)
	}
	vals, err := r.redis.MGet(ctx, r.keys(accountID, domain.ActionClassConnect, now)...).Result()
	if err != nil {
		return domain.Usage{}, fmt.Errorf("rate limit usage: %w", err)
	}
	counts := make([]int, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			counts[i], _ = strconv.Atoi(s)
		}
	}
	return usage(accountID, limits, counts), nil
}
