package worker

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/outreach-engine/internal/storage"
)

// Jobs runs the scheduled maintenance jobs: the stale-dispatch reaper and
// the daily snapshot archive.
type Jobs struct {
	cron      *cron.Cron
	reaper    *DispatchReaper
	snapshots storage.SnapshotStore
	now       func() time.Time
}

// NewJobs creates the job runner. snapshots may be nil, which disables the
// archive job.
func NewJobs(reaper *DispatchReaper, snapshots storage.SnapshotStore) *Jobs {
	return &Jobs{
		cron:      cron.New(),
		reaper:    reaper,
		snapshots: snapshots,
		now:       time.Now,
	}
}

// Setup registers the jobs on the given cron schedules.
func (j *Jobs) Setup(reapSchedule, archiveSchedule string) error {
	if _, err := j.cron.AddFunc(reapSchedule, j.reap); err != nil {
		return err
	}
	if j.snapshots == nil {
		return nil
	}
	_, err := j.cron.AddFunc(archiveSchedule, j.archive)
	return err
}

func (j *Jobs) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := j.reaper.Reap(ctx); err != nil {
		log.Printf("[Jobs] Reap failed: %v", err)
	}
}

// archive stores yesterday's last snapshot of every campaign.
func (j *Jobs) archive() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	day := j.now().UTC().AddDate(0, 0, -1)
	n, err := j.snapshots.ArchiveDay(ctx, day)
	if err != nil {
		log.Printf("[Jobs] Archive of %s failed after %d campaigns: %v", day.Format("2006-01-02"), n, err)
		return
	}
	log.Printf("[Jobs] Archived %d campaign snapshots for %s", n, day.Format("2006-01-02"))
}

// Start starts the scheduler in its own goroutine.
func (j *Jobs) Start() {
	log.Println("[Jobs] Starting scheduled jobs")
	j.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (j *Jobs) Stop() {
	<-j.cron.Stop().Done()
	log.Println("[Jobs] Stopped")
}
