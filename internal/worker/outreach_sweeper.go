package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/dispatch"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/sequencer"
	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/storage"
)

// =============================================================================
// OUTREACH SWEEPER
// =============================================================================
// Every interval the sweeper loads running campaigns, takes a per-campaign
// lock and plans every active enrollment. RunNow decisions are handed to the
// dispatcher, Done decisions complete the enrollment, and the counts of the
// sweep become the campaign's snapshot.

const (
	DefaultSweepInterval    = time.Minute
	DefaultSweepConcurrency = 4
	DefaultSweepBatchSize   = 500
	DefaultSweepLockTTL     = 5 * time.Minute
)

// Dispatcher hands a planned step to channel workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, e domain.LeadEnrollment, step domain.StepDefinition, accountID string) (dispatch.WorkItem, error)
}

// SweeperOptions tunes an OutreachSweeper. Zero values take the defaults.
type SweeperOptions struct {
	Interval    time.Duration
	Concurrency int
	BatchSize   int
	LockTTL     time.Duration
	// Timeout bounds one sweep. Zero means no bound beyond the interval.
	Timeout time.Duration
}

func (o *SweeperOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultSweepInterval
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultSweepConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultSweepBatchSize
	}
	if o.LockTTL <= 0 {
		o.LockTTL = DefaultSweepLockTTL
	}
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Campaigns  int `json:"campaigns"`
	Skipped    int `json:"skipped"`
	Leads      int `json:"leads"`
	Dispatched int `json:"dispatched"`
	Deferred   int `json:"deferred"`
	Blocked    int `json:"blocked"`
	Completed  int `json:"completed"`
	Errors     int `json:"errors"`
}

func (s *SweepStats) add(o SweepStats) {
	s.Campaigns += o.Campaigns
	s.Skipped += o.Skipped
	s.Leads += o.Leads
	s.Dispatched += o.Dispatched
	s.Deferred += o.Deferred
	s.Blocked += o.Blocked
	s.Completed += o.Completed
	s.Errors += o.Errors
}

// OutreachSweeper periodically plans every lead of every running campaign.
type OutreachSweeper struct {
	repo       campaign.Repository
	ledger     campaign.Ledger
	planner    *sequencer.Planner
	dispatcher Dispatcher
	locker     *distlock.Locker      // optional; nil plans without locking
	snapshots  storage.SnapshotStore // optional
	opts       SweeperOptions
	workerID   string
	now        func() time.Time

	// Stats
	sweeps     int64
	dispatched int64
	errors     int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewOutreachSweeper creates a sweeper.
func NewOutreachSweeper(repo campaign.Repository, ledger campaign.Ledger, planner *sequencer.Planner, dispatcher Dispatcher, opts SweeperOptions) *OutreachSweeper {
	opts.defaults()
	return &OutreachSweeper{
		repo:       repo,
		ledger:     ledger,
		planner:    planner,
		dispatcher: dispatcher,
		opts:       opts,
		workerID:   fmt.Sprintf("sweeper-%s-%s", getHostname(), uuid.NewString()[:8]),
		now:        time.Now,
	}
}

// SetLocker sets the lock factory used to claim campaigns across workers.
func (s *OutreachSweeper) SetLocker(l *distlock.Locker) {
	s.locker = l
}

// SetSnapshotStore sets where per-campaign counters are written after each
// sweep.
func (s *OutreachSweeper) SetSnapshotStore(store storage.SnapshotStore) {
	s.snapshots = store
}

// Start begins the sweep loop.
func (s *OutreachSweeper) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[OutreachSweeper] Starting %s (interval=%v, concurrency=%d)", s.workerID, s.opts.Interval, s.opts.Concurrency)

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop cancels the running sweep and waits for it to finish.
func (s *OutreachSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Printf("[OutreachSweeper] Stopping...")
	s.cancel()
	s.wg.Wait()
	log.Printf("[OutreachSweeper] Stopped. Sweeps: %d, Dispatched: %d, Errors: %d",
		atomic.LoadInt64(&s.sweeps), atomic.LoadInt64(&s.dispatched), atomic.LoadInt64(&s.errors))
}

func (s *OutreachSweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx := s.ctx
			var cancel context.CancelFunc = func() {}
			if s.opts.Timeout > 0 {
				ctx, cancel = context.WithTimeout(s.ctx, s.opts.Timeout)
			}
			stats, err := s.SweepOnce(ctx)
			cancel()
			if err != nil {
				log.Printf("[OutreachSweeper] Sweep failed: %v", err)
				continue
			}
			if stats.Dispatched > 0 || stats.Errors > 0 {
				log.Printf("[OutreachSweeper] Swept %d campaigns, %d leads: dispatched=%d deferred=%d blocked=%d completed=%d errors=%d",
					stats.Campaigns, stats.Leads, stats.Dispatched, stats.Deferred, stats.Blocked, stats.Completed, stats.Errors)
			}
		}
	}
}

// SweepOnce plans every running campaign once. Campaigns are swept
// concurrently up to the configured limit; a campaign locked by another
// worker is skipped.
func (s *OutreachSweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	campaigns, err := s.repo.ListByStatus(ctx, domain.CampaignRunning)
	if err != nil {
		return SweepStats{}, fmt.Errorf("list running campaigns: %w", err)
	}
	atomic.AddInt64(&s.sweeps, 1)

	var (
		total SweepStats
		mu    sync.Mutex
		wg    sync.WaitGroup
		sem   = make(chan struct{}, s.opts.Concurrency)
	)
	for _, c := range campaigns {
		select {
		case <-ctx.Done():
			wg.Wait()
			return total, ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(c domain.Campaign) {
			defer wg.Done()
			defer func() { <-sem }()
			stats := s.sweepCampaign(ctx, c)
			mu.Lock()
			total.add(stats)
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	atomic.AddInt64(&s.dispatched, int64(total.Dispatched))
	atomic.AddInt64(&s.errors, int64(total.Errors))
	return total, nil
}

func (s *OutreachSweeper) sweepCampaign(ctx context.Context, c domain.Campaign) SweepStats {
	var lock distlock.DistLock
	if s.locker != nil {
		lock = s.locker.For("sweep:"+c.ID, s.opts.LockTTL)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			log.Printf("[OutreachSweeper] Lock error for campaign %s: %v", c.ID, err)
			return SweepStats{Errors: 1}
		}
		if !ok {
			return SweepStats{Skipped: 1}
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Printf("[OutreachSweeper] Release lock for campaign %s: %v", c.ID, err)
			}
		}()
	}

	stats := SweepStats{Campaigns: 1}
	steps, err := s.repo.GetSteps(ctx, c.ID)
	if err != nil {
		log.Printf("[OutreachSweeper] Load steps for campaign %s: %v", c.ID, err)
		stats.Errors++
		return stats
	}

	snap := domain.CampaignSnapshot{CampaignID: c.ID}
	for offset := 0; ; offset += s.opts.BatchSize {
		// A sweep outliving the lock TTL would let another worker plan the
		// same leads.
		if lock != nil && offset > 0 {
			if err := lock.Extend(ctx, s.opts.LockTTL); err != nil {
				log.Printf("[OutreachSweeper] Lost lock for campaign %s after %d leads: %v", c.ID, offset, err)
				stats.Errors++
				return stats
			}
		}
		batch, err := s.repo.ListEnrollments(ctx, c.ID, campaign.EnrollmentFilter{Limit: s.opts.BatchSize, Offset: offset})
		if err != nil {
			log.Printf("[OutreachSweeper] List enrollments for campaign %s: %v", c.ID, err)
			stats.Errors++
			return stats
		}
		for _, e := range batch {
			if ctx.Err() != nil {
				return stats
			}
			s.sweepLead(ctx, c, steps, e, &stats, &snap)
		}
		if len(batch) < s.opts.BatchSize {
			break
		}
	}

	if s.snapshots != nil {
		snap.TakenAt = s.now()
		if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
			log.Printf("[OutreachSweeper] Save snapshot for campaign %s: %v", c.ID, err)
			stats.Errors++
		}
	}
	return stats
}

// sweepLead plans one enrollment and counts it into the snapshot.
// Completed enrollments count as delivered; stopped and removed ones are
// not counted.
func (s *OutreachSweeper) sweepLead(ctx context.Context, c domain.Campaign, steps []domain.StepDefinition, e domain.LeadEnrollment, stats *SweepStats, snap *domain.CampaignSnapshot) {
	switch e.Status {
	case domain.EnrollmentCompleted:
		snap.Total++
		snap.Delivered++
		return
	case domain.EnrollmentActive:
	default:
		return
	}
	snap.Total++
	stats.Leads++

	activities, err := s.ledger.GetActivities(ctx, e.LeadID, e.CampaignID)
	if err != nil {
		logger.Error("load activities", "campaign_id", c.ID, "lead_id", e.LeadID, "error", err.Error())
		stats.Errors++
		snap.Pending++
		return
	}
	d, err := s.planner.Plan(ctx, sequencer.Input{
		Campaign:   c,
		Enrollment: e,
		Steps:      steps,
		Activities: activities,
		Now:        s.now(),
	})
	if err != nil {
		logger.Error("plan lead", "campaign_id", c.ID, "lead_id", e.LeadID, "error", err.Error())
		stats.Errors++
		snap.Pending++
		return
	}

	switch d.Disposition {
	case sequencer.RunNow:
		snap.Pending++
		if _, err := s.dispatcher.Dispatch(ctx, e, *d.Step, d.AccountID); err != nil {
			stats.Errors++
			return
		}
		stats.Dispatched++
	case sequencer.Done:
		snap.Delivered++
		stats.Completed++
		if err := s.repo.SetEnrollmentStatus(ctx, e.CampaignID, e.LeadID, domain.EnrollmentCompleted); err != nil {
			logger.Error("complete enrollment", "campaign_id", c.ID, "lead_id", e.LeadID, "error", err.Error())
			stats.Errors++
		}
	case sequencer.Blocked:
		stats.Blocked++
		if d.RateLimited() {
			snap.Paused++
		} else {
			snap.Failed++
		}
		logger.Debug("lead blocked", "campaign_id", c.ID, "lead_id", e.LeadID, "reason", d.Reason)
	default:
		snap.Pending++
		stats.Deferred++
	}
}

func getHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
