package topicmap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/testhelpers"
	"github.com/jonesrussell/analyst/internal/topicmap"
)

func seedCatalog(t *testing.T, store *graph.Store, ids ...string) {
	t.Helper()

	now := time.Now().UTC()
	for _, id := range ids {
		_, err := store.CreateTopic(context.Background(), &domain.Topic{
			ID:          id,
			Name:        id,
			Category:    "macro",
			Level:       domain.LevelMain,
			Status:      domain.TopicActive,
			Stance:      domain.StanceThesisOnly,
			LastUpdated: now,
			CreatedAt:   now,
		})
		require.NoError(t, err)
	}
}

func seedUnit(t *testing.T, store *graph.Store) *domain.ContentUnit {
	t.Helper()

	now := time.Now().UTC()
	unit := &domain.ContentUnit{
		ID:          "AAAAAAAA1",
		Title:       "Gold climbs as yields fall",
		Summary:     "Bullion gains on rate cut bets.",
		Body:        "Gold rose while treasury yields slipped.",
		Source:      "reuters",
		DedupKey:    "dedup-1",
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

func TestMap_ValidatesEachCandidate(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedCatalog(t, store, "gold", "silver", "rates")
	unit := seedUnit(t, store)

	client := testhelpers.NewMockLLM().
		Respond("TOPIC CATALOG", `{"motivation": "bullion and rates move together", "existing": ["gold", "silver"], "new": null}`).
		Respond("TOPIC: gold", `{"motivation": "directly about gold", "relevance": 0.92}`).
		Respond("TOPIC: silver", `{"motivation": "tangential", "relevance": 0.41}`)

	mapper := topicmap.New(store, client, 0.6, logger.NewNop())
	result, err := mapper.Map(context.Background(), unit.ID)
	require.NoError(t, err)

	require.Len(t, result.Mappings, 1, "silver sits below the floor and must be dropped")
	assert.Equal(t, "gold", result.Mappings[0].TopicID)
	assert.InDelta(t, 0.92, result.Mappings[0].Score, 1e-9)
	assert.Equal(t, 3, client.CallCount(), "one classify call plus one validation per candidate")
}

func TestMap_UnknownCandidateSkipped(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedCatalog(t, store, "gold")
	unit := seedUnit(t, store)

	client := testhelpers.NewMockLLM().
		Respond("TOPIC CATALOG", `{"motivation": "m", "existing": ["gold", "crypto_winter"], "new": null}`).
		Respond("TOPIC: gold", `{"motivation": "m", "relevance": 0.8}`)

	mapper := topicmap.New(store, client, 0.6, logger.NewNop())
	result, err := mapper.Map(context.Background(), unit.ID)
	require.NoError(t, err)

	require.Len(t, result.Mappings, 1)
	assert.Equal(t, "gold", result.Mappings[0].TopicID)
	assert.Equal(t, 2, client.CallCount(), "unknown ids never reach validation")
}

func TestMap_NoTopicsIsAValidOutcome(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedCatalog(t, store, "gold")
	unit := seedUnit(t, store)

	client := testhelpers.NewMockLLM().
		Respond("TOPIC CATALOG", `{"motivation": "no market relevance", "existing": null, "new": null}`)

	mapper := topicmap.New(store, client, 0.6, logger.NewNop())
	result, err := mapper.Map(context.Background(), unit.ID)
	require.NoError(t, err)

	assert.Empty(t, result.Mappings)
	assert.Empty(t, result.Proposals)
	assert.Equal(t, "no market relevance", result.Motivation)
}

func TestMap_CarriesProposals(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedCatalog(t, store, "gold")
	unit := seedUnit(t, store)

	client := testhelpers.NewMockLLM().
		Respond("TOPIC CATALOG", "```json\n{\"motivation\": \"new anchor needed\", \"existing\": null, \"new\": [\"Structured Finance\"]}\n```")

	mapper := topicmap.New(store, client, 0.6, logger.NewNop())
	result, err := mapper.Map(context.Background(), unit.ID)
	require.NoError(t, err)

	require.Len(t, result.Proposals, 1)
	assert.Equal(t, "Structured Finance", result.Proposals[0].Name)
}

func TestMap_IsSideEffectFree(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedCatalog(t, store, "gold")
	unit := seedUnit(t, store)

	client := testhelpers.NewMockLLM().
		Respond("TOPIC CATALOG", `{"motivation": "m", "existing": ["gold"], "new": null}`).
		Respond("TOPIC: gold", `{"motivation": "m", "relevance": 0.95}`)

	mapper := topicmap.New(store, client, 0.6, logger.NewNop())
	_, err := mapper.Map(context.Background(), unit.ID)
	require.NoError(t, err)

	got, err := store.GetUnit(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnprocessed, got.Status, "mapping must not advance the unit")

	n, err := store.CountEdges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "mapping must not write edges")
}

func TestMap_LLMFailurePropagates(t *testing.T) {
	store := testhelpers.NewStore(t)
	seedCatalog(t, store, "gold")
	unit := seedUnit(t, store)

	boom := errors.New("model overloaded")
	client := testhelpers.NewMockLLM().FailOn("TOPIC CATALOG", boom)

	mapper := topicmap.New(store, client, 0.6, logger.NewNop())
	_, err := mapper.Map(context.Background(), unit.ID)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, client.CallCount(), "classification failures are not retried")
}

func TestMap_UnknownUnit(t *testing.T) {
	store := testhelpers.NewStore(t)
	client := testhelpers.NewMockLLM()

	mapper := topicmap.New(store, client, 0.6, logger.NewNop())
	_, err := mapper.Map(context.Background(), "ZZZZZZZZ9")
	assert.ErrorIs(t, err, graph.ErrNotFound)
	assert.Zero(t, client.CallCount())
}
