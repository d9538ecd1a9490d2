package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/dispatch"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/sequencer"
	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/storage"
)

type sweepFixture struct {
	store     *memory.Store
	queue     *dispatch.MemoryQueue
	snapshots *storage.Local
	sweeper   *OutreachSweeper
}

func newSweepFixture(t *testing.T, steps []domain.StepDefinition, leads ...string) *sweepFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	_, err := store.Create(ctx, &domain.Campaign{
		ID: "c1", OrganizationID: "org-1", Name: "Founders", Status: domain.CampaignRunning,
		AccountIDs: []string{"acct-1"}, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceSteps(ctx, "c1", steps))
	for i, lead := range leads {
		require.NoError(t, store.Enroll(ctx, &domain.LeadEnrollment{
			LeadID: lead, CampaignID: "c1", Platform: domain.PlatformLinkedIn,
			Status: domain.EnrollmentActive, EnrolledAt: time.Now().Add(-time.Hour + time.Duration(i)*time.Second),
		}))
	}

	limiter := ratelimit.NewMemoryLimiter(ratelimit.FixedLimits{DailyMax: 1, WeeklyMax: 5}, nil)
	queue := dispatch.NewMemoryQueue()
	snapshots, err := storage.NewLocal("")
	require.NoError(t, err)

	sw := NewOutreachSweeper(store, store, sequencer.NewPlanner(limiter, store),
		dispatch.NewDispatcher(queue, store), SweeperOptions{Concurrency: 2, BatchSize: 2})
	sw.SetSnapshotStore(snapshots)
	return &sweepFixture{store: store, queue: queue, snapshots: snapshots, sweeper: sw}
}

func visitOnly() []domain.StepDefinition {
	return []domain.StepDefinition{
		{ID: "start", Order: 0, Type: domain.StepStart},
		{ID: "visit", Order: 1, Type: domain.StepProfileVisit},
		{ID: "end", Order: 2, Type: domain.StepEnd},
	}
}

func TestOutreachSweeper_SweepLifecycle(t *testing.T) {
	f := newSweepFixture(t, visitOnly(), "lead-1")
	ctx := context.Background()

	stats, err := f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Campaigns)
	assert.Equal(t, 1, stats.Dispatched)

	items := f.queue.Drain()
	require.Len(t, items, 1)
	assert.Equal(t, "visit", items[0].StepID)
	assert.Equal(t, domain.ActionProfileVisit, items[0].ActionType)

	// The open dispatch keeps the lead deferred.
	stats, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Dispatched)
	assert.Equal(t, 1, stats.Deferred)
	assert.Empty(t, f.queue.Drain())

	require.NoError(t, f.store.AppendActivity(ctx, domain.Activity{
		ID: "sent-1", LeadID: "lead-1", CampaignID: "c1", StepID: "visit",
		ActionType: domain.ActionProfileVisit, Platform: domain.PlatformLinkedIn,
		Status: domain.ActivitySent, Timestamp: time.Now(),
	}))

	stats, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)

	e, err := f.store.GetEnrollment(ctx, "c1", "lead-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCompleted, e.Status)

	snap, err := f.snapshots.Latest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Delivered)
	assert.Equal(t, 1, snap.Total)

	// Completed enrollments are counted but no longer planned.
	stats, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Leads)
	snap, err = f.snapshots.Latest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Delivered)
}

func TestOutreachSweeper_RateLimitedLeadsArePaused(t *testing.T) {
	steps := []domain.StepDefinition{
		{ID: "start", Order: 0, Type: domain.StepStart},
		{ID: "connect", Order: 1, Type: domain.StepConnect},
		{ID: "end", Order: 2, Type: domain.StepEnd},
	}
	f := newSweepFixture(t, steps, "lead-1", "lead-2", "lead-3")

	stats, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Leads)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Equal(t, 2, stats.Blocked)

	snap, err := f.snapshots.Latest(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Paused)
	assert.Equal(t, 1, snap.Pending)
	assert.Equal(t, 3, snap.Total)
}

func TestOutreachSweeper_SkipsPausedCampaigns(t *testing.T) {
	f := newSweepFixture(t, visitOnly(), "lead-1")
	require.NoError(t, f.store.UpdateStatus(context.Background(), "org-1", "c1", domain.CampaignPaused))

	stats, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Campaigns)
	assert.Empty(t, f.queue.Drain())
}

func TestOutreachSweeper_SkipsLockedCampaign(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := newSweepFixture(t, visitOnly(), "lead-1")
	locker := distlock.NewLocker(client, nil, "outreach:")
	f.sweeper.SetLocker(locker)

	held := locker.For("sweep:c1", time.Minute)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, f.queue.Drain())

	require.NoError(t, held.Release(context.Background()))
	stats, err = f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)
}

// stealingRepo drops the sweep lock once the first page of leads is read,
// as if the TTL ran out and another worker took over.
type stealingRepo struct {
	*memory.Store
	mr *miniredis.Miniredis
}

func (r *stealingRepo) ListEnrollments(ctx context.Context, campaignID string, f campaign.EnrollmentFilter) ([]domain.LeadEnrollment, error) {
	if f.Offset == 0 {
		r.mr.Del("lock:outreach:sweep:" + campaignID)
	}
	return r.Store.ListEnrollments(ctx, campaignID, f)
}

func TestOutreachSweeper_StopsWhenLockLost(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := newSweepFixture(t, visitOnly(), "lead-1", "lead-2", "lead-3")
	limiter := ratelimit.NewMemoryLimiter(ratelimit.FixedLimits{DailyMax: 20, WeeklyMax: 100}, nil)
	sw := NewOutreachSweeper(&stealingRepo{Store: f.store, mr: mr}, f.store, sequencer.NewPlanner(limiter, f.store),
		dispatch.NewDispatcher(f.queue, f.store), SweeperOptions{Concurrency: 1, BatchSize: 2})
	sw.SetLocker(distlock.NewLocker(client, nil, "outreach:"))

	stats, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Dispatched)
	assert.Equal(t, 1, stats.Errors)
	assert.Len(t, f.queue.Drain(), 2)
}

func TestOutreachSweeper_ExtendsLockBetweenPages(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := newSweepFixture(t, visitOnly(), "lead-1", "lead-2", "lead-3")
	f.sweeper.SetLocker(distlock.NewLocker(client, nil, "outreach:"))

	stats, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Leads)
	assert.Equal(t, 0, stats.Errors)
	assert.False(t, mr.Exists("lock:outreach:sweep:c1"))
}

func TestOutreachSweeper_StartStop(t *testing.T) {
	f := newSweepFixture(t, visitOnly())
	require.NoError(t, f.sweeper.Start())
	assert.Error(t, f.sweeper.Start(), "double start")
	f.sweeper.Stop()
	f.sweeper.Stop()

	f.sweeper.mu.RLock()
	defer f.sweeper.mu.RUnlock()
	assert.False(t, f.sweeper.running)
}
