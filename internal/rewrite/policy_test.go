package rewrite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/rewrite"
	"github.com/jonesrussell/analyst/internal/testhelpers"
)

func policyConfig() config.PipelineConfig {
	cfg := config.PipelineConfig{}
	cfg.SetDefaults()
	return cfg
}

func newPolicy(t *testing.T, store *graph.Store, cfg config.PipelineConfig) *rewrite.Policy {
	t.Helper()
	return rewrite.NewPolicy(store, cfg, logger.NewNop())
}

func seedTopic(t *testing.T, store *graph.Store, id string) {
	t.Helper()

	now := time.Now().UTC()
	_, err := store.CreateTopic(context.Background(), &domain.Topic{
		ID: id, Name: id, Category: "commodities",
		Level: domain.LevelMain, Status: domain.TopicActive, Stance: domain.StanceThesisOnly,
		LastUpdated: now, CreatedAt: now,
	})
	require.NoError(t, err)
}

// linkUnits creates n fresh units and links them to the topic at the given
// time, returning their ids.
func linkUnits(t *testing.T, store *graph.Store, topicID string, at time.Time, n, offset int) []string {
	t.Helper()

	ctx := context.Background()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("UNIT%05d", offset+i)
		created, err := store.CreateUnit(ctx, &domain.ContentUnit{
			ID: id, Title: "unit " + id, Source: "reuters",
			DedupKey: "dedup-" + id, Tier: domain.TierStandard,
			Status:      domain.StatusProcessed,
			PublishedAt: at, CreatedAt: at, UpdatedAt: at,
		})
		require.NoError(t, err)
		require.True(t, created)

		_, err = store.AddEdge(ctx, domain.Edge{
			SrcID: id, DstID: topicID, Kind: domain.EdgeAbout, Score: 0.8, CreatedAt: at,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestShouldRewrite_ThresholdProgression(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedTopic(t, store, "gold")
	policy := newPolicy(t, store, policyConfig())
	ctx := context.Background()

	// Threshold for "current" is 3. Two new units are not enough.
	linkUnits(t, store, "gold", time.Now().UTC().Add(-2*time.Hour), 2, 0)
	decision, err := policy.ShouldRewrite(ctx, "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.False(t, decision.Rewrite)
	assert.Equal(t, rewrite.ReasonBelowThreshold, decision.Reason)
	assert.Len(t, decision.NewUnitIDs, 2)
	assert.Equal(t, 3, decision.Threshold)

	// The third unit tips it over.
	linkUnits(t, store, "gold", time.Now().UTC().Add(-time.Hour), 1, 2)
	decision, err = policy.ShouldRewrite(ctx, "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.True(t, decision.Rewrite)
	assert.Equal(t, rewrite.ReasonThresholdMet, decision.Reason)
	assert.Len(t, decision.NewUnitIDs, 3)

	// After the rewrite lands, those units are consumed.
	require.NoError(t, store.SetSection(ctx, &domain.SectionRecord{
		TopicID: "gold", Section: domain.SectionCurrent,
		Text: "fresh analysis", RewrittenAt: time.Now().UTC(),
	}))
	decision, err = policy.ShouldRewrite(ctx, "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.False(t, decision.Rewrite)
	assert.Equal(t, rewrite.ReasonNoNewUnits, decision.Reason)
	assert.Empty(t, decision.NewUnitIDs)
}

func TestShouldRewrite_PerSectionBaselines(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedTopic(t, store, "gold")
	policy := newPolicy(t, store, policyConfig())
	ctx := context.Background()

	linkUnits(t, store, "gold", time.Now().UTC().Add(-time.Hour), 3, 0)
	require.NoError(t, store.SetSection(ctx, &domain.SectionRecord{
		TopicID: "gold", Section: domain.SectionCurrent,
		Text: "written", RewrittenAt: time.Now().UTC(),
	}))

	// "current" consumed the units; "drivers" (threshold 2) did not.
	decision, err := policy.ShouldRewrite(ctx, "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.Equal(t, rewrite.ReasonNoNewUnits, decision.Reason)

	decision, err = policy.ShouldRewrite(ctx, "gold", domain.SectionDrivers)
	require.NoError(t, err)
	assert.True(t, decision.Rewrite, "each section tracks its own last rewrite")
}

func TestShouldRewrite_Cooldown(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedTopic(t, store, "gold")
	policy := newPolicy(t, store, policyConfig())
	ctx := context.Background()

	// Section rewritten an hour ago, three newer units already linked.
	require.NoError(t, store.UpsertSection(ctx, &domain.SectionRecord{
		TopicID: "gold", Section: domain.SectionCurrent,
		Text: "recent", RewrittenAt: time.Now().UTC().Add(-time.Hour),
	}))
	linkUnits(t, store, "gold", time.Now().UTC().Add(-30*time.Minute), 3, 0)

	decision, err := policy.ShouldRewrite(ctx, "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.False(t, decision.Rewrite)
	assert.Equal(t, rewrite.ReasonCooldown, decision.Reason)
	assert.Len(t, decision.NewUnitIDs, 3, "units keep waiting through the cooldown")

	// Same shape with the last rewrite far in the past passes.
	require.NoError(t, store.UpsertSection(ctx, &domain.SectionRecord{
		TopicID: "gold", Section: domain.SectionCurrent,
		Text: "old", RewrittenAt: time.Now().UTC().Add(-25 * time.Hour),
	}))
	decision, err = policy.ShouldRewrite(ctx, "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.True(t, decision.Rewrite)
}

func TestShouldRewrite_HiddenTopic(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedTopic(t, store, "gold")
	linkUnits(t, store, "gold", time.Now().UTC().Add(-time.Hour), 5, 0)
	require.NoError(t, store.SetTopicStatus(context.Background(), "gold", domain.TopicHidden))

	policy := newPolicy(t, store, policyConfig())
	decision, err := policy.ShouldRewrite(context.Background(), "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.False(t, decision.Rewrite)
	assert.Equal(t, rewrite.ReasonTopicHidden, decision.Reason)
}

func TestShouldRewrite_UnknownTopicOrSection(t *testing.T) {
	store := testhelpers.NewStore(t)
	policy := newPolicy(t, store, policyConfig())

	_, err := policy.ShouldRewrite(context.Background(), "missing", domain.SectionCurrent)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	seedTopic(t, store, "gold")
	_, err = policy.ShouldRewrite(context.Background(), "gold", domain.Section("sidebar"))
	require.Error(t, err)
}

func TestShouldRewrite_UnnamedSectionDefaultsToOne(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedTopic(t, store, "gold")
	linkUnits(t, store, "gold", time.Now().UTC().Add(-time.Hour), 1, 0)

	cfg := config.PipelineConfig{RewriteCooldown: 24 * time.Hour}
	policy := newPolicy(t, store, cfg)

	decision, err := policy.ShouldRewrite(context.Background(), "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.True(t, decision.Rewrite, "with no configured threshold one unit is enough")
	assert.Equal(t, 1, decision.Threshold)
}
