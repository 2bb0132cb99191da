package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelindex/reelindex/internal/api"
	"github.com/reelindex/reelindex/internal/config"
	"github.com/reelindex/reelindex/internal/db"
	"github.com/reelindex/reelindex/internal/jobs"
	"github.com/reelindex/reelindex/internal/models"
	"github.com/reelindex/reelindex/internal/repository"
	"github.com/reelindex/reelindex/internal/scanner"
	"github.com/reelindex/reelindex/internal/scheduler"
	"github.com/reelindex/reelindex/internal/version"
	"github.com/reelindex/reelindex/internal/watcher"
)

func main() {
	ver := version.Load()
	log.Printf("reelindex %s starting...", ver.Version)

	cfg := config.Load()
	if cfg.LogLevel == "debug" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	indexRepo := repository.NewIndexRepository(database.DB)
	videoRepo := repository.NewVideoRepository(database.DB)

	if n, err := indexRepo.CoerceScanningToQueued(); err != nil {
		log.Printf("warning: failed to coerce scanning indexes to queued: %v", err)
	} else if n > 0 {
		log.Printf("recovered %d index(es) left scanning by a previous crash", n)
	}

	queue := jobs.NewQueue(cfg.RedisAddr, cfg.JobConcurrency)
	defer queue.Stop()

	sched := scheduler.New(cfg.RedisAddr)

	srv := api.NewServer(cfg, database, queue, sched)

	orchestrator := scanner.NewOrchestrator(
		videoRepo, indexRepo,
		cfg.ScanWorkers, cfg.ScanRateLimit,
		func(p models.ScanProgress) { srv.WSHub().Broadcast("scan:progress", p) },
	)
	scanHandler := jobs.NewScanHandler(orchestrator, indexRepo, srv.WSHub())
	jobs.RegisterHandlers(queue, scanHandler)

	indexes, err := indexRepo.List()
	if err != nil {
		log.Fatalf("failed to list indexes: %v", err)
	}
	for _, idx := range indexes {
		if idx.RescanCron == nil {
			continue
		}
		if _, err := sched.RegisterRescan(*idx.RescanCron, idx.ID); err != nil {
			log.Printf("warning: failed to register rescan for index %s: %v", idx.ID, err)
		}
	}

	fw, err := watcher.New(indexRepo, queue)
	if err != nil {
		log.Printf("warning: filesystem watcher disabled: %v", err)
	} else {
		fw.Start()
		defer fw.Stop()
	}

	ctx, cancelQueue := context.WithCancel(context.Background())
	go func() {
		if err := queue.Start(ctx); err != nil {
			log.Fatalf("job queue error: %v", err)
		}
	}()

	go func() {
		if err := sched.Start(); err != nil {
			log.Fatalf("scheduler error: %v", err)
		}
	}()

	go func() {
		log.Printf("listening on %s", cfg.Addr())
		if err := srv.Start(); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancelQueue()
	sched.Stop()
	time.Sleep(100 * time.Millisecond)
}
