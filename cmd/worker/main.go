package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"simulator-backend/internal/bootstrap"
	"simulator-backend/internal/queue"
	"simulator-backend/internal/shared/config"
	"simulator-backend/internal/shared/telemetry"
)

const (
	defaultVisibilitySeconds  = 300
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()
	telemetry.Init(cfg.LogFile)
	defer telemetry.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := max(1, cfg.AnalysisWorkers)
	shutdownTimeout := time.Duration(envInt("WORKER_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close(context.Background())

	// Visibility must outlast one job or SQS redelivers it mid-analysis.
	visibilitySeconds := envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	if jobSeconds := int(app.Analysis.JobTimeout().Seconds()); visibilitySeconds <= jobSeconds {
		visibilitySeconds = jobSeconds + 30
	}

	var (
		wg     sync.WaitGroup
		poller func()
	)
	switch cfg.AnalysisQueue {
	case "sqs":
		if strings.TrimSpace(cfg.SQSQueueURL) == "" {
			log.Fatal("SQS_QUEUE_URL is required")
		}
		client, err := newSQSAPI(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatalf("load aws config: %v", err)
		}
		poller = func() {
			pollSQS(ctx, &wg, client, cfg.SQSQueueURL, app.Analysis, concurrency, visibilitySeconds)
		}
	case "redis":
		rq, rdb, err := queue.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisQueueKey)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		poller = func() {
			pollRedis(ctx, &wg, rq, app.Analysis, concurrency)
		}
	default:
		log.Fatalf("worker needs ANALYSIS_QUEUE=sqs or redis, got %q", cfg.AnalysisQueue)
	}

	telemetry.Info("worker.started", map[string]any{
		"queue":       cfg.AnalysisQueue,
		"concurrency": concurrency,
		"visibility":  visibilitySeconds,
	})
	poller()

	telemetry.Info("worker.draining", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": shutdownTimeout.String()})
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
