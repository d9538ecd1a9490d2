package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/outreach-engine/internal/bootstrap"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	log.Println("Starting outreach sweep worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	bootstrap.ConfigureLogging(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open backends: %v", err)
	}
	defer deps.Close()

	if deps.DB == nil {
		log.Println("WARNING: no DATABASE_URL; this worker only sees its own in-memory campaigns")
	}

	sweeper, err := deps.Sweeper()
	if err != nil {
		log.Fatalf("Failed to build sweeper: %v", err)
	}

	if *once {
		stats, err := sweeper.SweepOnce(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		logger.Info("sweep finished",
			"campaigns", stats.Campaigns,
			"dispatched", stats.Dispatched,
			"deferred", stats.Deferred,
			"blocked", stats.Blocked,
			"errors", stats.Errors,
		)
		return
	}

	jobs, err := deps.Jobs()
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start sweeper: %v", err)
	}
	jobs.Start()
	log.Printf("Worker running (sweep every %s, reaper %q, archive %q)",
		cfg.Sweeper.Interval(), cfg.Dispatch.ReaperSchedule, cfg.Dispatch.ArchiveSchedule)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	sweeper.Stop()
	jobs.Stop()
	cancel()

	log.Println("Worker stopped")
}
