package qa_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/qa"
	"github.com/jonesrussell/analyst/internal/testhelpers"
	"github.com/jonesrussell/analyst/internal/tracker"
)

type auditorFixture struct {
	store   *graph.Store
	events  *tracker.Store
	mock    *testhelpers.MockLLM
	auditor *qa.Auditor
	cfg     config.QAConfig
}

func newAuditorFixture(t *testing.T) *auditorFixture {
	t.Helper()

	dir := t.TempDir()
	cfg := config.QAConfig{
		ReportsDir: filepath.Join(dir, "reports"),
		CounterDir: filepath.Join(dir, "counters"),
	}
	store := testhelpers.NewStore(t)
	events := tracker.NewStore(filepath.Join(dir, "events"), logger.NewNop())
	mock := testhelpers.NewMockLLM()

	return &auditorFixture{
		store:   store,
		events:  events,
		mock:    mock,
		auditor: qa.NewAuditor(store, events, mock, cfg, nil, logger.NewNop()),
		cfg:     cfg,
	}
}

func (f *auditorFixture) seedEvent(t *testing.T) *domain.TrackerEvent {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	unit := &domain.ContentUnit{
		ID:          "K3F9ZQ2MB",
		Title:       "Gold rallies on rate cut bets",
		Source:      "reuters",
		DedupKey:    "dedup-1",
		Tier:        domain.TierStandard,
		Status:      domain.StatusProcessed,
		PublishedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := f.store.CreateUnit(context.Background(), unit)
	require.NoError(t, err)
	require.True(t, created)

	event := &domain.TrackerEvent{
		Type:      domain.EventAddUnit,
		Component: "ingest",
		Action:    "processed",
		IDs:       map[string]string{"unit_id": unit.ID},
		Details:   map[string]any{"topics": "gold"},
	}
	_, err = f.events.Record(event)
	require.NoError(t, err)
	return event
}

func TestAuditOne_PassMarksReviewed(t *testing.T) {
	f := newAuditorFixture(t)
	event := f.seedEvent(t)
	f.mock.Queue(`{"verdict": "pass", "motivation": "mapping is defensible", "recommendation": ""}`)

	j, err := f.auditor.AuditOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, qa.VerdictPass, j.Verdict)
	assert.Empty(t, j.ReportPath)

	reloaded, err := f.events.Load(event.Type, event.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Reviewed)

	// No report, no counter on a pass.
	_, err = os.Stat(f.cfg.ReportsDir)
	assert.True(t, os.IsNotExist(err))
	n, err := f.auditor.DailyFailures(time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAuditOne_FailWritesReportAndCounter(t *testing.T) {
	f := newAuditorFixture(t)
	f.seedEvent(t)
	f.mock.Queue(`{"verdict": "fail", "motivation": "linked topic does not exist", "recommendation": "tighten validation"}`)

	j, err := f.auditor.AuditOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, qa.VerdictFail, j.Verdict)
	require.NotEmpty(t, j.ReportPath)

	body, err := os.ReadFile(j.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "linked topic does not exist")
	assert.Contains(t, string(body), "tighten validation")
	assert.Contains(t, string(body), "K3F9ZQ2MB")

	n, err := f.auditor.DailyFailures(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAuditOne_InvalidVerdictCoercedToFail(t *testing.T) {
	f := newAuditorFixture(t)
	f.seedEvent(t)
	f.mock.Queue(`{"verdict": "maybe", "motivation": "", "recommendation": ""}`)

	j, err := f.auditor.AuditOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, qa.VerdictFail, j.Verdict)
	assert.Contains(t, j.Motivation, "invalid verdict")
}

func TestAuditOne_JudgeErrorLeavesEventUnreviewed(t *testing.T) {
	f := newAuditorFixture(t)
	event := f.seedEvent(t)
	f.mock.QueueError(assert.AnError)

	_, err := f.auditor.AuditOne(context.Background())
	require.Error(t, err)

	reloaded, err := f.events.Load(event.Type, event.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Reviewed)
}

func TestAuditOne_DrainedStream(t *testing.T) {
	f := newAuditorFixture(t)

	_, err := f.auditor.AuditOne(context.Background())
	require.ErrorIs(t, err, tracker.ErrNoEvents)
}
