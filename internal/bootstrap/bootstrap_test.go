package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/dispatch"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/repository/memory"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RateLimit: config.RateLimitConfig{
			Backend:     "memory",
			DefaultTier: "basic",
			Tiers:       map[string]config.TierConfig{"basic": {DailyMax: 2, WeeklyMax: 10}},
		},
		Dispatch: config.DispatchConfig{
			Transport:       "memory",
			StaleAfterMins:  60,
			ReaperSchedule:  "*/5 * * * *",
			ArchiveSchedule: "15 0 * * *",
		},
		Storage:    config.StorageConfig{Type: "local", LocalPath: t.TempDir()},
		Onboarding: config.OnboardingConfig{SessionTTLMinutes: 60},
		Sweeper:    config.SweeperConfig{IntervalSeconds: 60, Concurrency: 2, BatchSize: 10, LockTTLSeconds: 30},
	}
}

func TestOpenInMemory(t *testing.T) {
	d, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer d.Close()

	assert.Nil(t, d.DB)
	assert.Nil(t, d.Redis)
	assert.IsType(t, &memory.Store{}, d.Repo)
	assert.IsType(t, &ratelimit.MemoryLimiter{}, d.Limiter)

	now := time.Now()
	for i := 0; i < 2; i++ {
		adm, err := d.Limiter.TryAdmit(context.Background(), "acct-1", domain.ActionClassConnect, now)
		require.NoError(t, err)
		assert.True(t, adm.Admitted)
	}
	adm, err := d.Limiter.TryAdmit(context.Background(), "acct-1", domain.ActionClassConnect, now)
	require.NoError(t, err)
	assert.False(t, adm.Admitted)

	assert.NotNil(t, d.CampaignService())
	assert.NotNil(t, d.Onboarding())

	sweeper, err := d.Sweeper()
	require.NoError(t, err)
	assert.NotNil(t, sweeper)

	jobs, err := d.Jobs()
	require.NoError(t, err)
	jobs.Start()
	jobs.Stop()
}

func TestOpenWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	cfg.RateLimit.Backend = "redis"
	cfg.Dispatch.Transport = "redis"

	d, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer d.Close()

	assert.IsType(t, &ratelimit.RedisLimiter{}, d.Limiter)
	q, err := d.Queue()
	require.NoError(t, err)
	assert.IsType(t, &dispatch.RedisQueue{}, q)
}

func TestOpenRejectsMissingBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"redis limiter without redis", func(c *config.Config) { c.RateLimit.Backend = "redis" }},
		{"postgres limiter without database", func(c *config.Config) { c.RateLimit.Backend = "postgres" }},
		{"unknown limiter", func(c *config.Config) { c.RateLimit.Backend = "etcd" }},
		{"bad timezone", func(c *config.Config) { c.RateLimit.Timezone = "Mars/Olympus" }},
		{"bad redis url", func(c *config.Config) { c.Redis.URL = "not a url" }},
		{"unknown storage", func(c *config.Config) { c.Storage.Type = "ftp" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := Open(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestQueueSelection(t *testing.T) {
	d, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer d.Close()

	q, err := d.Queue()
	require.NoError(t, err)
	assert.IsType(t, &dispatch.MemoryQueue{}, q)

	d.Config.Dispatch.Transport = "http"
	_, err = d.Queue()
	assert.Error(t, err)

	d.Config.Dispatch.WebhookURL = "http://workers.internal/dispatch"
	q, err = d.Queue()
	require.NoError(t, err)
	assert.IsType(t, &dispatch.HTTPQueue{}, q)

	d.Config.Dispatch.Transport = "redis"
	_, err = d.Queue()
	assert.Error(t, err)
}
