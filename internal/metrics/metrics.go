// Package metrics exposes the analyst's Prometheus instrumentation: one
// collector set covering ingestion, rewrites, QA audits and sync runs, plus
// the HTTP listener that serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "analyst"

// Metrics holds every collector. All record methods are nil-receiver safe so
// components can run without instrumentation in tests.
type Metrics struct {
	// Ingestion
	UnitsSubmitted  *prometheus.CounterVec
	UnitsResumed    prometheus.Counter
	MappingDuration prometheus.Histogram

	// Rewrites
	RewriteDecisions *prometheus.CounterVec
	SectionsWritten  *prometheus.CounterVec
	QualityRounds    prometheus.Histogram
	OpenIssues       prometheus.Histogram
	SectionDuration  prometheus.Histogram

	// QA
	Audits *prometheus.CounterVec

	// Sync
	SyncRuns     *prometheus.CounterVec
	SyncEntities *prometheus.CounterVec

	// Scheduler
	TickDuration prometheus.Histogram
	Backlog      prometheus.Gauge
}

// New registers the collector set on the default registry. Call once per
// process; promauto panics on duplicate registration.
func New() *Metrics {
	m := &Metrics{}

	m.UnitsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "units_submitted_total",
		Help:      "Submissions through the ingestion gate by outcome",
	}, []string{"outcome"})

	m.UnitsResumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "units_resumed_total",
		Help:      "Unprocessed units picked up again after an earlier failure",
	})

	m.MappingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "mapping_duration_seconds",
		Help:      "Time to classify and validate one unit against the topic catalog",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	m.RewriteDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rewrite_decisions_total",
		Help:      "Rewrite trigger decisions by reason",
	}, []string{"decision", "reason"})

	m.SectionsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sections_written_total",
		Help:      "Completed section runs by section name",
	}, []string{"section"})

	m.QualityRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "quality_rounds",
		Help:      "Critic/checker rounds consumed per section run",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})

	m.OpenIssues = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "open_issues",
		Help:      "Unresolved review issues carried into the committed text",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
	})

	m.SectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "section_duration_seconds",
		Help:      "End-to-end time per section run",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
	})

	m.Audits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "qa_audits_total",
		Help:      "QA audits by verdict",
	}, []string{"verdict"})

	m.SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_runs_total",
		Help:      "Reconciliation runs by mode and outcome",
	}, []string{"mode", "outcome"})

	m.SyncEntities = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_entities_total",
		Help:      "Entities moved during reconciliation by class and operation",
	}, []string{"class", "op"})

	m.TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_tick_duration_seconds",
		Help:      "Time per scheduler tick",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	m.Backlog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unprocessed_backlog",
		Help:      "Unprocessed units seen by the last scheduler tick",
	})

	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSubmission counts one gate submission.
func (m *Metrics) RecordSubmission(outcome string, resumed bool) {
	if m == nil {
		return
	}
	m.UnitsSubmitted.WithLabelValues(outcome).Inc()
	if resumed {
		m.UnitsResumed.Inc()
	}
}

// RecordMapping observes one mapper run.
func (m *Metrics) RecordMapping(d time.Duration) {
	if m == nil {
		return
	}
	m.MappingDuration.Observe(d.Seconds())
}

// RecordDecision counts one rewrite trigger decision.
func (m *Metrics) RecordDecision(rewrite bool, reason string) {
	if m == nil {
		return
	}
	decision := "skip"
	if rewrite {
		decision = "rewrite"
	}
	m.RewriteDecisions.WithLabelValues(decision, reason).Inc()
}

// RecordSection observes one completed section run.
func (m *Metrics) RecordSection(section string, rounds, openIssues int, d time.Duration) {
	if m == nil {
		return
	}
	m.SectionsWritten.WithLabelValues(section).Inc()
	m.QualityRounds.Observe(float64(rounds))
	m.OpenIssues.Observe(float64(openIssues))
	m.SectionDuration.Observe(d.Seconds())
}

// RecordAudit counts one QA audit.
func (m *Metrics) RecordAudit(verdict string) {
	if m == nil {
		return
	}
	m.Audits.WithLabelValues(verdict).Inc()
}

// RecordSyncRun counts one reconciliation run.
func (m *Metrics) RecordSyncRun(mode string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.SyncRuns.WithLabelValues(mode, outcome).Inc()
}

// RecordSyncEntity counts one moved entity.
func (m *Metrics) RecordSyncEntity(class, op string) {
	if m == nil {
		return
	}
	m.SyncEntities.WithLabelValues(class, op).Inc()
}

// RecordTick observes one scheduler tick and the backlog it saw.
func (m *Metrics) RecordTick(d time.Duration, backlog int) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
	m.Backlog.Set(float64(backlog))
}
