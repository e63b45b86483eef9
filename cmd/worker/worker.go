// Package worker implements the long-running scheduler command: the ingest
// backlog drain, rewrite-trigger polling and the metrics listener.
package worker

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/analyst/cmd/common"
	"github.com/jonesrussell/analyst/internal/agents"
	"github.com/jonesrussell/analyst/internal/ingest"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/metrics"
	"github.com/jonesrussell/analyst/internal/rewrite"
	"github.com/jonesrussell/analyst/internal/scheduler"
	"github.com/jonesrussell/analyst/internal/topicmap"
)

const shutdownTimeout = 10 * time.Second

// Command returns the worker subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the scheduler loop (ingestion + section rewrites)",
		RunE: func(*cobra.Command, []string) error {
			return run()
		},
	}
}

func run() error {
	cfg, log, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	store, err := common.OpenLocal(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	client, err := common.NewLLM(cfg, log)
	if err != nil {
		return err
	}

	redisClient := common.NewRedis(cfg)
	defer func() {
		_ = redisClient.Close()
	}()

	events := common.NewTracker(cfg, log)
	m := metrics.New()

	mapper := topicmap.New(store, client, cfg.Pipeline.ConfidenceFloor, log)
	cache := ingest.NewDedupCache(redisClient, cfg.Redis.TTL, log)
	gate := ingest.NewGate(store, mapper, cache, events, cfg.Pipeline, m, log)
	policy := rewrite.NewPolicy(store, cfg.Pipeline, log)
	pipeline := agents.NewPipeline(store, client, events, cfg.Pipeline, m, log)
	sched := scheduler.New(gate, policy, pipeline, store, events, cfg.Scheduler, m, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics listener started", logger.String("addr", cfg.Metrics.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener failed", logger.Error(err))
		}
	}()

	sched.Start(ctx)
	<-ctx.Done()
	log.Info("shutdown signal received")

	sched.Stop()
	log.Info("scheduler drained", logger.Any("stats", sched.Stats()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics listener shutdown failed", logger.Error(err))
	}
	return nil
}
