package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/outreach-engine/internal/api"
	"github.com/ignite/outreach-engine/internal/bootstrap"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v\n"+
			"  Hint: Run 'lsof -i %s' to find the blocking process", addr, err, addr)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	embedded := flag.Bool("embedded-worker", false, "run the sweeper and cron jobs in this process")
	flag.Parse()

	log.Println("Starting outreach API server...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	bootstrap.ConfigureLogging(cfg.Logging)

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open backends: %v", err)
	}
	defer deps.Close()

	handlers := api.NewHandlers(deps.CampaignService(), deps.Onboarding(), deps.Snapshots)
	health := api.NewHealthChecker(deps.DB, deps.Redis, deps.Ledger, cfg.Dispatch.StaleAfter())
	server := api.NewServer(cfg.Server, handlers, health)

	// An in-memory store is only visible to this process, so the sweeper
	// has to run here.
	var (
		sweeper *worker.OutreachSweeper
		jobs    *worker.Jobs
	)
	if *embedded || deps.DB == nil {
		if sweeper, err = deps.Sweeper(); err != nil {
			log.Fatalf("Failed to build sweeper: %v", err)
		}
		if jobs, err = deps.Jobs(); err != nil {
			log.Fatalf("Failed to schedule jobs: %v", err)
		}
		if err := sweeper.Start(); err != nil {
			log.Fatalf("Failed to start sweeper: %v", err)
		}
		jobs.Start()
		log.Println("Embedded worker started")
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()
	logger.Info("server ready",
		"addr", cfg.Server.Addr(),
		"rate_limit_backend", cfg.RateLimit.Backend,
		"dispatch_transport", cfg.Dispatch.Transport,
		"storage", cfg.Storage.Type,
	)

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if sweeper != nil {
		sweeper.Stop()
		jobs.Stop()
	}
	cancel()

	log.Println("Server stopped")
}
