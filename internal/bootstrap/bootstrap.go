// Package bootstrap opens the backends named in the config and assembles
// the engine's services. cmd/server and cmd/worker share it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/dispatch"
	"github.com/ignite/outreach-engine/internal/onboarding"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/httpretry"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/repository/memory"
	"github.com/ignite/outreach-engine/internal/repository/postgres"
	"github.com/ignite/outreach-engine/internal/sequencer"
	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/storage"
	"github.com/ignite/outreach-engine/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Deps holds the opened backends. DB and Redis are nil when not configured.
type Deps struct {
	Config    *config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Repo      campaign.Repository
	Ledger    campaign.Ledger
	Limiter   ratelimit.Limiter
	Snapshots storage.SnapshotStore
}

// ConfigureLogging applies the logging section to the default logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.Redact())
}

// Open connects to everything cfg names. Without a database URL the
// campaign store and ledger live in memory.
func Open(ctx context.Context, cfg *config.Config) (*Deps, error) {
	d := &Deps{Config: cfg}

	if cfg.Database.URL != "" {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		d.DB = db
		d.Repo = postgres.NewCampaignRepo(db)
		d.Ledger = postgres.NewLedgerRepo(db)
		log.Println("[bootstrap] Campaign store: postgres")
	} else {
		mem := memory.NewStore()
		d.Repo, d.Ledger = mem, mem
		log.Println("[bootstrap] Campaign store: memory (no DATABASE_URL)")
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		d.Redis = redis.NewClient(opts)
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			d.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Println("[bootstrap] Connected to Redis")
	}

	limiter, err := d.newLimiter()
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Limiter = limiter

	snapshots, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Snapshots = snapshots

	return d, nil
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Println("[bootstrap] Connected to database")
	return db, nil
}

// Limits resolves account ceilings: account_limits overrides when a
// database is configured, then the configured tiers.
func (d *Deps) Limits() ratelimit.LimitsProvider {
	rl := d.Config.RateLimit
	var static ratelimit.LimitsProvider = ratelimit.StaticLimits{
		DefaultTier: rl.DefaultTier,
		Tiers:       rl.TierLimits(),
		Accounts:    rl.Accounts,
	}
	if d.DB != nil {
		return postgres.NewAccountLimitsRepo(d.DB, static)
	}
	return static
}

func (d *Deps) newLimiter() (ratelimit.Limiter, error) {
	rl := d.Config.RateLimit
	loc, err := rl.Location()
	if err != nil {
		return nil, fmt.Errorf("rate limit timezone: %w", err)
	}
	limits := d.Limits()

	switch rl.Backend {
	case "redis":
		if d.Redis == nil {
			return nil, fmt.Errorf("rate limit backend redis: REDIS_URL is not set")
		}
		return ratelimit.NewRedisLimiter(d.Redis, limits, loc), nil
	case "postgres":
		if d.DB == nil {
			return nil, fmt.Errorf("rate limit backend postgres: DATABASE_URL is not set")
		}
		return ratelimit.NewPGLimiter(d.DB, limits, loc), nil
	case "memory", "":
		return ratelimit.NewMemoryLimiter(limits, loc), nil
	}
	return nil, fmt.Errorf("unknown rate limit backend %q", rl.Backend)
}

// CampaignService builds the campaign service on the opened stores.
func (d *Deps) CampaignService() *campaign.Service {
	return campaign.NewService(d.Repo, d.Ledger, d.Limiter)
}

// Onboarding builds the questionnaire orchestrator. Sessions live in Redis
// when it is configured.
func (d *Deps) Onboarding() *onboarding.Orchestrator {
	ob := d.Config.Onboarding
	var store onboarding.Store
	if d.Redis != nil {
		store = onboarding.NewRedisStore(d.Redis, ob.SessionTTL())
	} else {
		store = onboarding.NewMemoryStore(ob.SessionTTL())
	}
	return onboarding.NewOrchestrator(store, onboarding.Bounds{
		MaxLeadsPerDay:  ob.MaxLeadsPerDay,
		MaxCampaignDays: ob.MaxCampaignDays,
	})
}

// Queue builds the dispatch transport named by cfg.Transport.
func (d *Deps) Queue() (dispatch.Queue, error) {
	dc := d.Config.Dispatch
	switch dc.Transport {
	case "redis":
		if d.Redis == nil {
			return nil, fmt.Errorf("dispatch transport redis: REDIS_URL is not set")
		}
		return dispatch.NewRedisQueue(d.Redis, dc.QueueKey), nil
	case "http":
		if dc.WebhookURL == "" {
			return nil, fmt.Errorf("dispatch transport http: webhook_url is not set")
		}
		client := httpretry.NewRetryClient(nil, httpretry.Options{MaxRetries: dc.MaxRetries})
		return dispatch.NewHTTPQueue(client, dc.WebhookURL, dc.WebhookToken), nil
	case "memory", "":
		return dispatch.NewMemoryQueue(), nil
	}
	return nil, fmt.Errorf("unknown dispatch transport %q", dc.Transport)
}

// Sweeper builds the planning sweeper with its dispatcher, lock factory and
// snapshot store.
func (d *Deps) Sweeper() (*worker.OutreachSweeper, error) {
	queue, err := d.Queue()
	if err != nil {
		return nil, err
	}
	sc := d.Config.Sweeper
	s := worker.NewOutreachSweeper(
		d.Repo, d.Ledger,
		sequencer.NewPlanner(d.Limiter, d.Ledger),
		dispatch.NewDispatcher(queue, d.Ledger),
		worker.SweeperOptions{
			Interval:    sc.Interval(),
			Concurrency: sc.Concurrency,
			BatchSize:   sc.BatchSize,
			LockTTL:     sc.LockTTL(),
			Timeout:     sc.SweepTimeout(),
		},
	)
	s.SetLocker(distlock.NewLocker(d.Redis, d.DB, "outreach:"))
	s.SetSnapshotStore(d.Snapshots)
	return s, nil
}

// Jobs builds the cron jobs: the stale-dispatch reaper and the nightly
// snapshot archive.
func (d *Deps) Jobs() (*worker.Jobs, error) {
	dc := d.Config.Dispatch
	jobs := worker.NewJobs(worker.NewDispatchReaper(d.Ledger, dc.StaleAfter()), d.Snapshots)
	if err := jobs.Setup(dc.ReaperSchedule, dc.ArchiveSchedule); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Close releases the connections.
func (d *Deps) Close() {
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
