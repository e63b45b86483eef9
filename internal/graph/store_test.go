package graph_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/logger"
)

func newTestStore(t *testing.T) *graph.Store {
	t.Helper()

	store, err := graph.Open("sqlite3", ":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func seedUnit(t *testing.T, store *graph.Store, id, title string) *domain.ContentUnit {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	unit := &domain.ContentUnit{
		ID:          id,
		Title:       title,
		Summary:     "summary of " + title,
		Body:        "body of " + title,
		Source:      "reuters",
		DedupKey:    "dedup-" + id,
		Tier:        domain.TierStandard,
		Status:      domain.StatusUnprocessed,
		PublishedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := store.CreateUnit(context.Background(), unit)
	require.NoError(t, err)
	require.True(t, created)
	return unit
}

func seedTopic(t *testing.T, store *graph.Store, id string) *domain.Topic {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	topic := &domain.Topic{
		ID:          id,
		Name:        id,
		Category:    "commodities",
		Level:       domain.LevelMain,
		Status:      domain.TopicActive,
		Stance:      domain.StanceThesisOnly,
		LastUpdated: now,
		CreatedAt:   now,
	}
	created, err := store.CreateTopic(context.Background(), topic)
	require.NoError(t, err)
	require.True(t, created)
	return topic
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := graph.Open("mysql", "dsn", logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestCreateUnit_DedupKeyCollapses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := seedUnit(t, store, "AAAAAAAA1", "Gold rallies")

	dup := *first
	dup.ID = "BBBBBBBB2"
	dup.Title = "Gold rallies (wire copy)"
	created, err := store.CreateUnit(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created, "same dedup key must not create a second unit")

	n, err := store.CountUnits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetUnitByDedupKey(ctx, first.DedupKey)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "Gold rallies", got.Title)
}

func TestGetUnit_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetUnit(context.Background(), "ZZZZZZZZ9")
	assert.ErrorIs(t, err, graph.ErrNotFound)

	_, err = store.GetUnitByDedupKey(context.Background(), "nope")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestCommitProcessing_ExactlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	unit := seedUnit(t, store, "AAAAAAAA1", "Gold rallies")
	seedTopic(t, store, "gold")
	seedTopic(t, store, "silver")

	links := []graph.TopicLink{
		{TopicID: "gold", Score: 0.92},
		{TopicID: "silver", Score: 0.71},
	}
	require.NoError(t, store.CommitProcessing(ctx, unit.ID, links))

	got, err := store.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, got.Status)

	for _, link := range links {
		ok, err := store.HasEdge(ctx, unit.ID, link.TopicID, domain.EdgeAbout)
		require.NoError(t, err)
		assert.True(t, ok, "about edge to %s must exist", link.TopicID)
	}

	// A second commit for the same unit must refuse to advance the status
	// again, and its edge writes must not survive the rollback.
	err = store.CommitProcessing(ctx, unit.ID, []graph.TopicLink{{TopicID: "gold", Score: 0.5}})
	assert.ErrorIs(t, err, graph.ErrAlreadyProcessed)

	n, err := store.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCommitProcessing_NoTopics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	unit := seedUnit(t, store, "AAAAAAAA1", "Weather report")

	require.NoError(t, store.CommitProcessing(ctx, unit.ID, nil))

	got, err := store.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessed, got.Status)

	n, err := store.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a no-topic unit is processed without edges")
}

func TestListUnitsByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := seedUnit(t, store, "AAAAAAAA1", "one")
	seedUnit(t, store, "BBBBBBBB2", "two")
	require.NoError(t, store.CommitProcessing(ctx, first.ID, nil))

	pending, err := store.ListUnitsByStatus(ctx, domain.StatusUnprocessed, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "BBBBBBBB2", pending[0].ID)

	done, err := store.ListUnitsByStatus(ctx, domain.StatusProcessed, 10)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, first.ID, done[0].ID)
}

func TestUpsertUnit_Overwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	unit := seedUnit(t, store, "AAAAAAAA1", "original title")

	unit.Title = "cloud title"
	unit.Status = domain.StatusProcessed
	unit.UpdatedAt = unit.UpdatedAt.Add(time.Hour)
	require.NoError(t, store.UpsertUnit(ctx, unit))

	got, err := store.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, "cloud title", got.Title)
	assert.Equal(t, domain.StatusProcessed, got.Status)

	n, err := store.CountUnits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateTopic_Duplicate(t *testing.T) {
	store := newTestStore(t)

	topic := seedTopic(t, store, "gold")
	created, err := store.CreateTopic(context.Background(), topic)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = store.CreateTopic(context.Background(), &domain.Topic{ID: "Bad ID!"})
	require.Error(t, err)
}

func TestSetTopicStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedTopic(t, store, "gold")
	require.NoError(t, store.SetTopicStatus(ctx, "gold", domain.TopicHidden))

	got, err := store.GetTopic(ctx, "gold")
	require.NoError(t, err)
	assert.Equal(t, domain.TopicHidden, got.Status)

	active, err := store.ListActiveTopics(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, active)

	err = store.SetTopicStatus(ctx, "missing", domain.TopicHidden)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestSymmetricEdges_SingleRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedTopic(t, store, "gold")
	seedTopic(t, store, "silver")

	created, err := store.AddEdge(ctx, domain.Edge{SrcID: "silver", DstID: "gold", Kind: domain.EdgePeers})
	require.NoError(t, err)
	assert.True(t, created)

	// The reverse orientation is the same logical edge.
	created, err = store.AddEdge(ctx, domain.Edge{SrcID: "gold", DstID: "silver", Kind: domain.EdgePeers})
	require.NoError(t, err)
	assert.False(t, created)

	for _, pair := range [][2]string{{"gold", "silver"}, {"silver", "gold"}} {
		ok, err := store.HasEdge(ctx, pair[0], pair[1], domain.EdgePeers)
		require.NoError(t, err)
		assert.True(t, ok, "edge must hold from %s to %s", pair[0], pair[1])
	}

	n, err := store.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := store.RemoveEdge(ctx, "silver", "gold", domain.EdgePeers)
	require.NoError(t, err)
	assert.True(t, removed)

	for _, pair := range [][2]string{{"gold", "silver"}, {"silver", "gold"}} {
		ok, err := store.HasEdge(ctx, pair[0], pair[1], domain.EdgePeers)
		require.NoError(t, err)
		assert.False(t, ok, "edge must be gone from %s to %s", pair[0], pair[1])
	}
}

func TestDirectedEdges_KeepBothDirections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedTopic(t, store, "rates")
	seedTopic(t, store, "gold")

	for _, e := range []domain.Edge{
		{SrcID: "rates", DstID: "gold", Kind: domain.EdgeInfluences},
		{SrcID: "gold", DstID: "rates", Kind: domain.EdgeInfluences},
	} {
		created, err := store.AddEdge(ctx, e)
		require.NoError(t, err)
		assert.True(t, created)
	}

	n, err := store.CountEdges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListTopicEdges_OrientsSymmetric(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedTopic(t, store, "gold")
	seedTopic(t, store, "silver")
	_, err := store.AddEdge(ctx, domain.Edge{SrcID: "silver", DstID: "gold", Kind: domain.EdgePeers})
	require.NoError(t, err)

	edges, err := store.ListTopicEdges(ctx, "silver")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "silver", edges[0].SrcID)
	assert.Equal(t, "gold", edges[0].DstID)
}

func TestUnitsLinkedSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedTopic(t, store, "gold")
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{
		cutoff.Add(-time.Hour),
		cutoff.Add(time.Hour),
		cutoff.Add(2 * time.Hour),
	} {
		id := fmt.Sprintf("AAAAAAAA%d", i+1)
		seedUnit(t, store, id, "unit "+id)
		_, err := store.AddEdge(ctx, domain.Edge{
			SrcID: id, DstID: "gold", Kind: domain.EdgeAbout, Score: 0.9, CreatedAt: at,
		})
		require.NoError(t, err)
	}

	ids, err := store.UnitsLinkedSince(ctx, "gold", cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAAAAA2", "AAAAAAAA3"}, ids)
}

func TestSetSection_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	topic := seedTopic(t, store, "gold")
	require.Nil(t, topic.LastAnalyzed)

	_, err := store.GetSection(ctx, "gold", domain.SectionCurrent)
	assert.ErrorIs(t, err, graph.ErrNotFound)

	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	rec := &domain.SectionRecord{
		TopicID:     "gold",
		Section:     domain.SectionCurrent,
		Text:        "Gold is consolidating above support (AAAAAAAA1).",
		RewrittenAt: at,
		Rounds:      2,
		OpenIssues:  1,
	}
	require.NoError(t, store.SetSection(ctx, rec))

	got, err := store.GetSection(ctx, "gold", domain.SectionCurrent)
	require.NoError(t, err)
	assert.Equal(t, rec.Text, got.Text)
	assert.Equal(t, 2, got.Rounds)
	assert.Equal(t, 1, got.OpenIssues)
	assert.True(t, got.RewrittenAt.Equal(at))

	fresh, err := store.GetTopic(ctx, "gold")
	require.NoError(t, err)
	require.NotNil(t, fresh.LastAnalyzed)
	assert.True(t, fresh.LastAnalyzed.Equal(at))
	assert.True(t, fresh.LastUpdated.Equal(at))

	err = store.SetSection(ctx, &domain.SectionRecord{
		TopicID: "missing", Section: domain.SectionCurrent, RewrittenAt: at,
	})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestUnitsForTopic_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedTopic(t, store, "gold")
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("AAAAAAAA%d", i)
		now := base.Add(time.Duration(i) * time.Hour)
		unit := &domain.ContentUnit{
			ID:          id,
			Title:       "unit " + id,
			Source:      "reuters",
			DedupKey:    "dedup-" + id,
			Tier:        domain.TierStandard,
			Status:      domain.StatusUnprocessed,
			PublishedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		created, err := store.CreateUnit(ctx, unit)
		require.NoError(t, err)
		require.True(t, created)
		_, err = store.AddEdge(ctx, domain.Edge{SrcID: id, DstID: "gold", Kind: domain.EdgeAbout})
		require.NoError(t, err)
	}

	units, err := store.UnitsForTopic(ctx, "gold", 2)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "AAAAAAAA3", units[0].ID)
	assert.Equal(t, "AAAAAAAA2", units[1].ID)
}
