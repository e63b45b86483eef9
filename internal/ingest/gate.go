// Package ingest is the single entry point for content units. The gate owns
// deduplication, resume of interrupted work and the exactly-once status
// transition; everything downstream can assume a unit passed through here.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/metrics"
	"github.com/jonesrussell/analyst/internal/topicmap"
	"github.com/jonesrussell/analyst/internal/tracker"
)

// Outcome is the terminal result of one submission.
type Outcome string

const (
	// OutcomeCreated means the unit completed graph processing in this call,
	// whether it was new or resumed.
	OutcomeCreated Outcome = "created"
	// OutcomeAlreadyProcessed means an identical unit already finished
	// processing earlier; nothing was done.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeFailed means the unit did not reach processed. Unless the
	// payload itself was rejected, the unit is stored and a later run
	// resumes it.
	OutcomeFailed Outcome = "failed"
)

// Receipt describes what happened to one submission.
type Receipt struct {
	Outcome  Outcome
	UnitID   string
	Resumed  bool
	Mappings []topicmap.Mapping
}

// Mapper produces validated topic links for a stored unit.
type Mapper interface {
	Map(ctx context.Context, unitID string) (*topicmap.Result, error)
}

// Gate ingests content units into the graph.
type Gate struct {
	store   *graph.Store
	mapper  Mapper
	cache   *DedupCache
	events  *tracker.Store
	cfg     config.PipelineConfig
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewGate wires the ingestion gate. m may be nil.
func NewGate(
	store *graph.Store,
	mapper Mapper,
	cache *DedupCache,
	events *tracker.Store,
	cfg config.PipelineConfig,
	m *metrics.Metrics,
	log logger.Logger,
) *Gate {
	return &Gate{store: store, mapper: mapper, cache: cache, events: events, cfg: cfg, metrics: m, logger: log}
}

// Submit ingests one payload. Duplicates of processed units are suppressed,
// an unprocessed duplicate resumes where it left off, and a unit whose
// pipeline fails stays unprocessed for the next attempt. The status advance
// inside CommitProcessing is the only retry-safety mechanism; there is no
// separate journal.
func (g *Gate) Submit(ctx context.Context, payload domain.NewUnit) (*Receipt, error) {
	receipt, err := g.submit(ctx, payload)
	g.metrics.RecordSubmission(string(receipt.Outcome), receipt.Resumed)
	return receipt, err
}

func (g *Gate) submit(ctx context.Context, payload domain.NewUnit) (*Receipt, error) {
	if err := payload.Validate(); err != nil {
		return &Receipt{Outcome: OutcomeFailed}, fmt.Errorf("ingest: %w", err)
	}
	key := payload.DedupKey()

	if g.cache.HasProcessed(ctx, key) {
		g.logger.Debug("duplicate suppressed by cache", logger.String("dedup_key", key))
		return &Receipt{Outcome: OutcomeAlreadyProcessed}, nil
	}

	existing, err := g.store.GetUnitByDedupKey(ctx, key)
	switch {
	case err == nil && existing.Status == domain.StatusProcessed:
		g.cache.MarkProcessed(ctx, key)
		g.logger.Debug("duplicate suppressed",
			logger.String("unit_id", existing.ID),
			logger.String("dedup_key", key))
		return &Receipt{Outcome: OutcomeAlreadyProcessed, UnitID: existing.ID}, nil

	case err == nil:
		g.logger.Info("resuming unprocessed unit",
			logger.String("unit_id", existing.ID),
			logger.String("dedup_key", key))
		return g.process(ctx, existing, true)

	case errors.Is(err, graph.ErrNotFound):
		// New content, fall through to creation.

	default:
		return &Receipt{Outcome: OutcomeFailed}, fmt.Errorf("ingest: %w", err)
	}

	now := time.Now().UTC()
	tier := payload.Tier
	if tier == "" {
		tier = domain.TierStandard
	}
	unit := &domain.ContentUnit{
		ID:          domain.NewUnitID(),
		Title:       payload.Title,
		Summary:     payload.Summary,
		Body:        payload.Body,
		Source:      payload.Source,
		ExternalID:  payload.ExternalID,
		DedupKey:    key,
		Tier:        tier,
		Status:      domain.StatusUnprocessed,
		PublishedAt: payload.PublishedAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := g.store.CreateUnit(ctx, unit)
	if err != nil {
		return &Receipt{Outcome: OutcomeFailed}, fmt.Errorf("ingest: %w", err)
	}
	if !created {
		// Lost a race on the dedup key; defer to whoever won.
		winner, err := g.store.GetUnitByDedupKey(ctx, key)
		if err != nil {
			return &Receipt{Outcome: OutcomeFailed}, fmt.Errorf("ingest: %w", err)
		}
		if winner.Status == domain.StatusProcessed {
			return &Receipt{Outcome: OutcomeAlreadyProcessed, UnitID: winner.ID}, nil
		}
		return g.process(ctx, winner, true)
	}

	return g.process(ctx, unit, false)
}

// ProcessPending resumes stored unprocessed units, oldest first, up to batch.
// Per-unit failures are logged and skipped so one poisoned unit cannot stall
// the backlog. Returns how many units reached a terminal outcome and how many
// failed.
func (g *Gate) ProcessPending(ctx context.Context, batch int) (processed, failed int, err error) {
	units, err := g.store.ListUnitsByStatus(ctx, domain.StatusUnprocessed, batch)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest: list pending: %w", err)
	}

	for _, unit := range units {
		select {
		case <-ctx.Done():
			return processed, failed, ctx.Err()
		default:
		}

		if _, perr := g.process(ctx, unit, true); perr != nil {
			failed++
			g.logger.Error("pending unit failed",
				logger.String("unit_id", unit.ID),
				logger.Error(perr))
			continue
		}
		processed++
	}
	return processed, failed, nil
}

// process runs the mapper and commits the result. The unit's status is
// advanced in the same transaction as its edges, so a crash anywhere before
// the commit leaves a resumable unprocessed unit and never a half-linked
// processed one.
func (g *Gate) process(ctx context.Context, unit *domain.ContentUnit, resumed bool) (*Receipt, error) {
	mapStart := time.Now()
	result, err := g.mapper.Map(ctx, unit.ID)
	g.metrics.RecordMapping(time.Since(mapStart))
	if err != nil {
		return &Receipt{Outcome: OutcomeFailed, UnitID: unit.ID, Resumed: resumed},
			fmt.Errorf("ingest: %w", err)
	}

	links := make([]graph.TopicLink, 0, len(result.Mappings))
	for _, m := range result.Mappings {
		links = append(links, graph.TopicLink{TopicID: m.TopicID, Score: m.Score})
	}
	if g.cfg.CreateProposedTopics {
		links = append(links, g.createProposals(ctx, unit, result.Proposals)...)
	}

	if err := g.store.CommitProcessing(ctx, unit.ID, links); err != nil {
		if errors.Is(err, graph.ErrAlreadyProcessed) {
			g.cache.MarkProcessed(ctx, unit.DedupKey)
			return &Receipt{Outcome: OutcomeAlreadyProcessed, UnitID: unit.ID}, nil
		}
		return &Receipt{Outcome: OutcomeFailed, UnitID: unit.ID, Resumed: resumed},
			fmt.Errorf("ingest: %w", err)
	}

	g.cache.MarkProcessed(ctx, unit.DedupKey)
	g.recordAddUnit(unit, result, resumed)

	g.logger.Info("unit processed",
		logger.String("unit_id", unit.ID),
		logger.String("source", unit.Source),
		logger.Int("topics", len(links)),
		logger.Bool("resumed", resumed))
	return &Receipt{
		Outcome:  OutcomeCreated,
		UnitID:   unit.ID,
		Resumed:  resumed,
		Mappings: result.Mappings,
	}, nil
}

// createProposals turns classifier proposals into real topics when the
// feature is enabled. Failures here degrade to fewer links, never to a failed
// unit.
func (g *Gate) createProposals(ctx context.Context, unit *domain.ContentUnit, proposals []topicmap.Proposal) []graph.TopicLink {
	var links []graph.TopicLink
	now := time.Now().UTC()

	for _, p := range proposals {
		id := topicIDFromName(p.Name)
		if !domain.IsTopicID(id) {
			g.logger.Warn("proposal name does not slug to a usable id",
				logger.String("name", p.Name),
				logger.String("slug", id))
			continue
		}

		topic := &domain.Topic{
			ID:          id,
			Name:        p.Name,
			Category:    "proposed",
			Level:       domain.LevelMain,
			Status:      domain.TopicActive,
			Stance:      domain.StanceThesisOnly,
			LastUpdated: now,
			CreatedAt:   now,
		}
		created, err := g.store.CreateTopic(ctx, topic)
		if err != nil {
			g.logger.Error("proposed topic not created",
				logger.String("topic_id", id), logger.Error(err))
			continue
		}
		if created {
			if _, err := g.events.Record(&domain.TrackerEvent{
				Type:      domain.EventAddTopic,
				Component: "ingest",
				Action:    "proposal_created",
				IDs:       map[string]string{"topic_id": id, "unit_id": unit.ID},
				Details:   map[string]any{"name": p.Name, "motivation": p.Motivation},
			}); err != nil {
				g.logger.Error("add_topic event not recorded", logger.Error(err))
			}
		}
		// The classifier nominated this as the unit's core subject; link at
		// the floor since no validation score exists for a brand-new topic.
		links = append(links, graph.TopicLink{TopicID: id, Score: g.cfg.ConfidenceFloor})
	}
	return links
}

func (g *Gate) recordAddUnit(unit *domain.ContentUnit, result *topicmap.Result, resumed bool) {
	topicIDs := make([]string, 0, len(result.Mappings))
	for _, m := range result.Mappings {
		topicIDs = append(topicIDs, m.TopicID)
	}

	if _, err := g.events.Record(&domain.TrackerEvent{
		Type:      domain.EventAddUnit,
		Component: "ingest",
		Action:    "processed",
		IDs:       map[string]string{"unit_id": unit.ID},
		Details: map[string]any{
			"source":     unit.Source,
			"tier":       string(unit.Tier),
			"motivation": result.Motivation,
			"topics":     strings.Join(topicIDs, ","),
			"resumed":    resumed,
		},
	}); err != nil {
		// The graph commit already happened; a provenance gap is logged, not
		// propagated as a processing failure.
		g.logger.Error("add_unit event not recorded",
			logger.String("unit_id", unit.ID),
			logger.Error(err))
	}
}

// topicIDFromName slugs a proposed topic name into the id charset.
func topicIDFromName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	pending := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pending = false
		default:
			pending = true
		}
	}
	id := b.String()
	if len(id) > 64 {
		id = strings.Trim(id[:64], "_")
	}
	return id
}
