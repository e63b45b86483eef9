// Package rewrite holds the deterministic trigger policy: a topic section is
// rewritten only when enough new evidence has accumulated since its last
// rewrite. No LLM is consulted and nothing is written; callers record the
// decision and run the pipeline.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/logger"
)

// Decision reasons, stable strings for provenance events.
const (
	ReasonThresholdMet   = "threshold_met"
	ReasonBelowThreshold = "below_threshold"
	ReasonNoNewUnits     = "no_new_units"
	ReasonCooldown       = "cooldown"
	ReasonTopicHidden    = "topic_hidden"
)

// Decision is the full outcome of one policy probe. NewUnitIDs are the units
// linked since the section's last rewrite; they ride along even on a negative
// decision so callers can log what is waiting.
type Decision struct {
	Rewrite    bool
	Reason     string
	Threshold  int
	NewUnitIDs []string
}

// Policy evaluates rewrite triggers against the graph.
type Policy struct {
	store  *graph.Store
	cfg    config.PipelineConfig
	logger logger.Logger
}

// NewPolicy creates a policy over one store.
func NewPolicy(store *graph.Store, cfg config.PipelineConfig, log logger.Logger) *Policy {
	return &Policy{store: store, cfg: cfg, logger: log}
}

// ShouldRewrite reports whether topic/section has accumulated enough new
// units to justify a rewrite. Rules, in order:
//
//  1. hidden topics are never rewritten
//  2. no new units since the section's last rewrite -> skip
//  3. fewer new units than the section's threshold -> skip
//  4. last rewrite closer than the cooldown -> skip, units keep waiting
//  5. otherwise -> rewrite
//
// A section that has never been written counts every linked unit as new and
// has no cooldown.
func (p *Policy) ShouldRewrite(ctx context.Context, topicID string, section domain.Section) (*Decision, error) {
	if !section.Valid() {
		return nil, fmt.Errorf("rewrite: unknown section %q", section)
	}

	topic, err := p.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}
	if topic.Status == domain.TopicHidden {
		return &Decision{Reason: ReasonTopicHidden, Threshold: p.threshold(section)}, nil
	}

	var lastRewrite time.Time
	rec, err := p.store.GetSection(ctx, topicID, section)
	switch {
	case err == nil:
		lastRewrite = rec.RewrittenAt
	case errors.Is(err, graph.ErrNotFound):
		// Never written; every linked unit is unconsumed.
	default:
		return nil, fmt.Errorf("rewrite: %w", err)
	}

	newIDs, err := p.store.UnitsLinkedSince(ctx, topicID, lastRewrite)
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}

	threshold := p.threshold(section)
	decision := &Decision{Threshold: threshold, NewUnitIDs: newIDs}

	switch {
	case len(newIDs) == 0:
		decision.Reason = ReasonNoNewUnits
	case len(newIDs) < threshold:
		decision.Reason = ReasonBelowThreshold
	case !lastRewrite.IsZero() && time.Now().UTC().Sub(lastRewrite) < p.cfg.RewriteCooldown:
		decision.Reason = ReasonCooldown
	default:
		decision.Rewrite = true
		decision.Reason = ReasonThresholdMet
	}

	p.logger.Debug("rewrite probe",
		logger.String("topic_id", topicID),
		logger.String("section", string(section)),
		logger.Bool("rewrite", decision.Rewrite),
		logger.String("reason", decision.Reason),
		logger.Int("new_units", len(newIDs)),
		logger.Int("threshold", threshold))
	return decision, nil
}

// threshold returns the section's configured trigger count. Sections the
// config does not name trigger on any single new unit.
func (p *Policy) threshold(section domain.Section) int {
	if n, ok := p.cfg.SectionThresholds[string(section)]; ok && n > 0 {
		return n
	}
	return 1
}
