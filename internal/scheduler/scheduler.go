// Package scheduler drives the long-running worker loop: each tick drains
// the unprocessed ingestion backlog through the gate, then probes the rewrite
// policy for every active topic and section and runs the agent pipeline for
// the pairs that trigger. All blocking work happens inside the tick;
// cancellation is honored between units and between sections, never mid-run.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/analyst/internal/agents"
	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/ingest"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/metrics"
	"github.com/jonesrussell/analyst/internal/rewrite"
	"github.com/jonesrussell/analyst/internal/tracker"
)

// Scheduler owns the ingest-and-rewrite loop.
type Scheduler struct {
	gate     *ingest.Gate
	policy   *rewrite.Policy
	pipeline *agents.Pipeline
	store    *graph.Store
	events   *tracker.Store
	cfg      config.SchedulerConfig
	metrics  *metrics.Metrics
	logger   logger.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats stats
}

type stats struct {
	ticks            int64
	unitsProcessed   int64
	unitsFailed      int64
	sectionsWritten  int64
	sectionsFailed   int64
	rewritesSkipped  int64
	lastTickDuration time.Duration
}

// New wires a scheduler. events and m may be nil.
func New(
	gate *ingest.Gate,
	policy *rewrite.Policy,
	pipeline *agents.Pipeline,
	store *graph.Store,
	events *tracker.Store,
	cfg config.SchedulerConfig,
	m *metrics.Metrics,
	log logger.Logger,
) *Scheduler {
	return &Scheduler{
		gate:     gate,
		policy:   policy,
		pipeline: pipeline,
		store:    store,
		events:   events,
		cfg:      cfg,
		metrics:  m,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start launches the loop in the background. The first tick runs immediately
// so a restart drains any backlog without waiting out the poll interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("scheduler started",
		logger.Duration("poll_interval", s.cfg.PollInterval),
		logger.Int("unit_batch", s.cfg.UnitBatch),
		logger.Int("topic_batch", s.cfg.TopicBatch))
}

// Stop signals the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one poll cycle synchronously. Every per-unit and per-section failure is logged
// and skipped; only context cancellation stops the cycle early.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()

	processed, failed, err := s.gate.ProcessPending(ctx, s.cfg.UnitBatch)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("backlog drain failed", logger.Error(err))
	}

	written, skipped, sectionFailures := s.probeRewrites(ctx)

	elapsed := time.Since(start)
	s.metrics.RecordTick(elapsed, processed+failed)

	s.mu.Lock()
	s.stats.ticks++
	s.stats.unitsProcessed += int64(processed)
	s.stats.unitsFailed += int64(failed)
	s.stats.sectionsWritten += int64(written)
	s.stats.sectionsFailed += int64(sectionFailures)
	s.stats.rewritesSkipped += int64(skipped)
	s.stats.lastTickDuration = elapsed
	s.mu.Unlock()

	if processed+failed+written+sectionFailures > 0 {
		s.logger.Info("tick complete",
			logger.Int("units_processed", processed),
			logger.Int("units_failed", failed),
			logger.Int("sections_written", written),
			logger.Int("sections_failed", sectionFailures),
			logger.Duration("duration", elapsed))
	}
}

// probeRewrites walks active topics in freshness order and every section in
// fixed order, recording each decision and running the pipeline on triggers.
func (s *Scheduler) probeRewrites(ctx context.Context) (written, skipped, failed int) {
	topics, err := s.store.ListActiveTopics(ctx, s.cfg.TopicBatch)
	if err != nil {
		s.logger.Error("active topic listing failed", logger.Error(err))
		return 0, 0, 0
	}

	for _, topic := range topics {
		for _, section := range domain.Sections() {
			select {
			case <-ctx.Done():
				return written, skipped, failed
			case <-s.stopChan:
				return written, skipped, failed
			default:
			}

			decision, err := s.policy.ShouldRewrite(ctx, topic.ID, section)
			if err != nil {
				s.logger.Error("rewrite probe failed",
					logger.String("topic_id", topic.ID),
					logger.String("section", string(section)),
					logger.Error(err))
				continue
			}
			s.metrics.RecordDecision(decision.Rewrite, decision.Reason)
			s.recordDecision(topic.ID, section, decision)

			if !decision.Rewrite {
				skipped++
				continue
			}

			if _, err := s.pipeline.RunSection(ctx, topic.ID, section); err != nil {
				failed++
				// The section keeps its last-good text; the linked units
				// still count as new on the next probe.
				s.logger.Error("section run failed",
					logger.String("topic_id", topic.ID),
					logger.String("section", string(section)),
					logger.Error(err))
				continue
			}
			written++
		}
	}
	return written, skipped, failed
}

// recordDecision writes the policy's verdict to the provenance trail.
// Negative decisions with nothing waiting are not recorded; probing an idle
// topic every tick would bury the audit stream in noise.
func (s *Scheduler) recordDecision(topicID string, section domain.Section, decision *rewrite.Decision) {
	if s.events == nil {
		return
	}
	if !decision.Rewrite && len(decision.NewUnitIDs) == 0 {
		return
	}

	eventType := domain.EventShouldRewriteNo
	if decision.Rewrite {
		eventType = domain.EventShouldRewriteTrue
	}
	if _, err := s.events.Record(&domain.TrackerEvent{
		Type:      eventType,
		Component: "scheduler",
		Action:    "probe",
		IDs:       map[string]string{"topic_id": topicID},
		Details: map[string]any{
			"section":      string(section),
			"reason":       decision.Reason,
			"threshold":    decision.Threshold,
			"new_units":    len(decision.NewUnitIDs),
			"new_unit_ids": strings.Join(decision.NewUnitIDs, ","),
		},
	}); err != nil {
		s.logger.Error("rewrite decision not recorded",
			logger.String("topic_id", topicID),
			logger.String("section", string(section)),
			logger.Error(err))
	}
}

// Stats returns a snapshot of the loop's counters for the worker's log line.
func (s *Scheduler) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"ticks":              s.stats.ticks,
		"units_processed":    s.stats.unitsProcessed,
		"units_failed":       s.stats.unitsFailed,
		"sections_written":   s.stats.sectionsWritten,
		"sections_failed":    s.stats.sectionsFailed,
		"rewrites_skipped":   s.stats.rewritesSkipped,
		"last_tick_duration": s.stats.lastTickDuration.String(),
	}
}
