package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/domain"
)

func TestNewUnitID_Format(t *testing.T) {
	t.Helper()

	seen := make(map[string]bool)
	for range 200 {
		id := domain.NewUnitID()
		require.True(t, domain.IsUnitID(id), "generated id %q must match the unit pattern", id)
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestIsUnitID(t *testing.T) {
	t.Helper()

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "K3F9ZQ2MB", true},
		{"lowercase", "k3f9zq2mb", false},
		{"too short", "K3F9ZQ2M", false},
		{"too long", "K3F9ZQ2MB1", false},
		{"punctuation", "K3F9ZQ2M!", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.IsUnitID(tt.id); got != tt.want {
				t.Errorf("IsUnitID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNewUnit_DedupKey(t *testing.T) {
	t.Helper()

	published := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	withExternal := domain.NewUnit{Title: "Gold rallies", Source: "reuters", ExternalID: "r-123", PublishedAt: published}
	assert.Equal(t, "r-123", withExternal.DedupKey())

	a := domain.NewUnit{Title: "Gold rallies", Source: "reuters", PublishedAt: published}
	b := domain.NewUnit{Title: "Gold rallies", Source: "reuters", PublishedAt: published}
	assert.Equal(t, a.DedupKey(), b.DedupKey(), "identical payloads must share a dedup key")

	c := domain.NewUnit{Title: "Gold slips", Source: "reuters", PublishedAt: published}
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
}

func TestNewUnit_Validate(t *testing.T) {
	t.Helper()

	published := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		unit    domain.NewUnit
		wantErr bool
	}{
		{"complete", domain.NewUnit{Title: "t", Source: "s", PublishedAt: published}, false},
		{"missing title", domain.NewUnit{Source: "s", PublishedAt: published}, true},
		{"missing source", domain.NewUnit{Title: "t", PublishedAt: published}, true},
		{"missing published", domain.NewUnit{Title: "t", Source: "s"}, true},
		{"bad tier", domain.NewUnit{Title: "t", Source: "s", PublishedAt: published, Tier: "urgent"}, true},
		{"known tier", domain.NewUnit{Title: "t", Source: "s", PublishedAt: published, Tier: domain.TierHeadline}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.unit.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEdge_Canonical(t *testing.T) {
	t.Helper()

	tests := []struct {
		name    string
		edge    domain.Edge
		wantSrc string
		wantDst string
	}{
		{"symmetric reordered", domain.Edge{SrcID: "silver", DstID: "gold", Kind: domain.EdgePeers}, "gold", "silver"},
		{"symmetric already ordered", domain.Edge{SrcID: "gold", DstID: "silver", Kind: domain.EdgeCorrelatesWith}, "gold", "silver"},
		{"directed untouched", domain.Edge{SrcID: "usd", DstID: "gold", Kind: domain.EdgeInfluences}, "usd", "gold"},
		{"about untouched", domain.Edge{SrcID: "K3F9ZQ2MB", DstID: "gold", Kind: domain.EdgeAbout}, "K3F9ZQ2MB", "gold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.edge.Canonical()
			if got.SrcID != tt.wantSrc || got.DstID != tt.wantDst {
				t.Errorf("Canonical() = (%s,%s), want (%s,%s)", got.SrcID, got.DstID, tt.wantSrc, tt.wantDst)
			}
		})
	}
}

func TestEdge_Key_SymmetricPairsCollapse(t *testing.T) {
	t.Helper()

	ab := domain.Edge{SrcID: "gold", DstID: "silver", Kind: domain.EdgePeers}
	ba := domain.Edge{SrcID: "silver", DstID: "gold", Kind: domain.EdgePeers}
	assert.Equal(t, ab.Key(), ba.Key(), "both directions of a symmetric edge must share one key")

	directed := domain.Edge{SrcID: "silver", DstID: "gold", Kind: domain.EdgeInfluences}
	reversed := domain.Edge{SrcID: "gold", DstID: "silver", Kind: domain.EdgeInfluences}
	assert.NotEqual(t, directed.Key(), reversed.Key())
}

func TestTrackerEvent_Validate(t *testing.T) {
	t.Helper()

	base := func() *domain.TrackerEvent {
		return &domain.TrackerEvent{
			Type:      domain.EventAddUnit,
			Component: "ingest",
			Action:    "submit",
			IDs:       map[string]string{"unit_id": "K3F9ZQ2MB", "topic_id": "gold"},
			Timestamp: time.Now().UTC(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*domain.TrackerEvent)
		wantErr bool
	}{
		{"valid", func(e *domain.TrackerEvent) {}, false},
		{"empty type", func(e *domain.TrackerEvent) { e.Type = "" }, true},
		{"malformed type", func(e *domain.TrackerEvent) { e.Type = "Add Unit" }, true},
		{"missing component", func(e *domain.TrackerEvent) { e.Component = "" }, true},
		{"missing action", func(e *domain.TrackerEvent) { e.Action = "" }, true},
		{"nil ids", func(e *domain.TrackerEvent) { e.IDs = nil }, true},
		{"empty id value", func(e *domain.TrackerEvent) { e.IDs = map[string]string{"unit_id": ""} }, true},
		{"malformed unit id", func(e *domain.TrackerEvent) { e.IDs = map[string]string{"unit_id": "short"} }, true},
		{"malformed topic id", func(e *domain.TrackerEvent) { e.IDs = map[string]string{"topic_id": "Gold!"} }, true},
		{"prefixed unit id key checked", func(e *domain.TrackerEvent) { e.IDs = map[string]string{"source_unit_id": "bad"} }, true},
		{"non id keys unconstrained", func(e *domain.TrackerEvent) { e.IDs = map[string]string{"run": "nightly-42"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base()
			tt.mutate(e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSection_Dependencies(t *testing.T) {
	t.Helper()

	assert.Empty(t, domain.SectionFundamental.Dependencies())
	assert.Equal(t, []domain.Section{domain.SectionFundamental}, domain.SectionCurrent.Dependencies())

	all := domain.SectionExecutiveSummary.Dependencies()
	require.Len(t, all, 5)
	assert.Equal(t, domain.SectionFundamental, all[0])
	assert.Equal(t, domain.SectionRisks, all[4])
	assert.True(t, domain.SectionExecutiveSummary.PriorOnly())
	assert.False(t, domain.SectionCurrent.PriorOnly())
}
