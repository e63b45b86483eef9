package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/analyst/internal/metrics"
)

// testMetrics is created once per test binary: promauto registers on the
// global registry and panics on duplicates.
var (
	testMetrics *metrics.Metrics
	metricsOnce sync.Once
)

func getMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	metricsOnce.Do(func() {
		testMetrics = metrics.New()
	})
	return testMetrics
}

func TestRecordMethods(t *testing.T) {
	m := getMetrics(t)

	// Exercising every collector; a label mismatch would panic here.
	m.RecordSubmission("created", false)
	m.RecordSubmission("created", true)
	m.RecordSubmission("already_processed", false)
	m.RecordSubmission("failed", false)
	m.RecordMapping(3 * time.Second)
	m.RecordDecision(true, "threshold_met")
	m.RecordDecision(false, "cooldown")
	m.RecordSection("current", 2, 1, 90*time.Second)
	m.RecordAudit("pass")
	m.RecordAudit("fail")
	m.RecordSyncRun("dry_run", false)
	m.RecordSyncRun("full", true)
	m.RecordSyncEntity("topics", "download")
	m.RecordTick(time.Second, 4)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.RecordSubmission("created", true)
		m.RecordMapping(time.Second)
		m.RecordDecision(false, "no_new_units")
		m.RecordSection("drivers", 1, 0, time.Second)
		m.RecordAudit("fail")
		m.RecordSyncRun("catch_up", false)
		m.RecordSyncEntity("units", "upload")
		m.RecordTick(time.Second, 0)
	})
}

func TestHandler(t *testing.T) {
	assert.NotNil(t, metrics.Handler())
}
