package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/analyst/internal/citations"
	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/metrics"
	"github.com/jonesrussell/analyst/internal/tracker"
)

// unitLimit is how many linked units one section run reads, newest first.
const unitLimit = 12

// SectionResult reports one completed section run. Text and the metadata are
// exactly what was committed to the graph.
type SectionResult struct {
	TopicID     string
	Section     domain.Section
	Text        string
	Rounds      int
	OpenIssues  int
	CitedUnits  []string
	Signals     []*Signal
	RewrittenAt time.Time
}

// Pipeline drives one section run end to end: material, signals, draft, the
// bounded quality loop, and the single write-back.
type Pipeline struct {
	store   *graph.Store
	client  llm.Client
	events  *tracker.Store
	cfg     config.PipelineConfig
	writer  *Writer
	critic  *Critic
	checker *SourceChecker
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewPipeline wires a pipeline over one graph store and one completion
// client. The tracker store receives a section_rewrite event per run; m may
// be nil.
func NewPipeline(store *graph.Store, client llm.Client, events *tracker.Store, cfg config.PipelineConfig, m *metrics.Metrics, log logger.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		client:  client,
		events:  events,
		cfg:     cfg,
		writer:  NewWriter(client, log),
		critic:  NewCritic(client, log),
		checker: NewSourceChecker(client, log),
		metrics: m,
		logger:  log,
	}
}

// RunSection rewrites one section of one topic. Stage failures propagate with
// the section's stored text untouched; the graph is only written after the
// quality loop has finished, and exactly once.
func (p *Pipeline) RunSection(ctx context.Context, topicID string, section domain.Section) (*SectionResult, error) {
	start := time.Now()
	m, err := BuildMaterial(ctx, p.store, topicID, section, unitLimit)
	if err != nil {
		return nil, err
	}
	if m.Empty() {
		return nil, fmt.Errorf("agents: %s/%s: %w", topicID, section, ErrNoMaterial)
	}

	signals, err := p.runSignals(ctx, m)
	if err != nil {
		return nil, err
	}

	draft, err := p.writer.Draft(ctx, m, signals)
	if err != nil {
		return nil, err
	}

	draft, rounds, openIssues, err := p.qualityLoop(ctx, m, signals, draft)
	if err != nil {
		return nil, err
	}

	result := &SectionResult{
		TopicID:     topicID,
		Section:     section,
		Text:        draft,
		Rounds:      rounds,
		OpenIssues:  openIssues,
		CitedUnits:  citations.ExtractUnitIDs(draft),
		Signals:     signals,
		RewrittenAt: time.Now().UTC(),
	}

	if err := p.store.SetSection(ctx, &domain.SectionRecord{
		TopicID:     topicID,
		Section:     section,
		Text:        result.Text,
		RewrittenAt: result.RewrittenAt,
		Rounds:      result.Rounds,
		OpenIssues:  result.OpenIssues,
	}); err != nil {
		return nil, fmt.Errorf("agents: commit %s/%s: %w", topicID, section, err)
	}

	p.recordRewrite(m, result)
	p.metrics.RecordSection(string(section), result.Rounds, result.OpenIssues, time.Since(start))

	p.logger.Info("section rewritten",
		logger.String("topic_id", topicID),
		logger.String("section", string(section)),
		logger.Int("rounds", result.Rounds),
		logger.Int("open_issues", result.OpenIssues),
		logger.Int("cited_units", len(result.CitedUnits)),
		logger.Int("chars", len(result.Text)))
	return result, nil
}

// runSignals executes the section's configured roster in order. Roster order
// is precedence order downstream, so the slice preserves it.
func (p *Pipeline) runSignals(ctx context.Context, m *Material) ([]*Signal, error) {
	names := p.cfg.Agents[string(m.Section)]
	signals := make([]*Signal, 0, len(names))
	for _, name := range names {
		agent, err := newSignalAgent(name, p.client, p.logger)
		if err != nil {
			return nil, err
		}
		signal, err := agent.Produce(ctx, m)
		if err != nil {
			return nil, err
		}
		signals = append(signals, signal)
	}
	return signals, nil
}

// qualityLoop runs at most MaxQualityRounds critic+checker rounds over the
// draft. Both reviewers approving ends the loop early; exhausting the budget
// keeps the last draft and reports the unresolved issue count from the last
// evaluation. The loop never blocks waiting for convergence.
func (p *Pipeline) qualityLoop(ctx context.Context, m *Material, signals []*Signal, draft string) (string, int, int, error) {
	rounds := 0
	openIssues := 0

	for round := 1; round <= p.cfg.MaxQualityRounds; round++ {
		rounds = round

		review, err := p.critic.Review(ctx, m, draft)
		if err != nil {
			return "", 0, 0, err
		}
		check, err := p.checker.Check(ctx, m, draft, review.Feedback)
		if err != nil {
			return "", 0, 0, err
		}

		openIssues = review.IssueCount() + check.IssueCount()
		if review.Approved && check.Approved {
			break
		}

		p.logger.Debug("quality round flagged draft",
			logger.String("topic_id", m.Topic.ID),
			logger.String("section", string(m.Section)),
			logger.Int("round", round),
			logger.Int("critic_issues", review.IssueCount()),
			logger.Int("checker_issues", check.IssueCount()))

		revised, err := p.writer.Rewrite(ctx, m, signals, draft, review.Feedback, check.Feedback)
		if err != nil {
			if errors.Is(err, llm.ErrEmptyCompletion) {
				p.logger.Warn("rewrite returned no text, keeping previous draft",
					logger.String("topic_id", m.Topic.ID),
					logger.String("section", string(m.Section)),
					logger.Int("round", round))
				continue
			}
			return "", 0, 0, err
		}
		if strings.TrimSpace(revised) != "" {
			draft = revised
		}
	}

	return draft, rounds, openIssues, nil
}

// recordRewrite writes the section_rewrite tracker event. The graph commit
// already happened; a provenance gap is logged, not propagated.
func (p *Pipeline) recordRewrite(m *Material, result *SectionResult) {
	agents := make([]string, 0, len(result.Signals))
	for _, s := range result.Signals {
		agents = append(agents, s.Agent)
	}

	if _, err := p.events.Record(&domain.TrackerEvent{
		Type:      domain.EventSectionRewrite,
		Component: "agents",
		Action:    "rewrite",
		IDs:       map[string]string{"topic_id": result.TopicID},
		Details: map[string]any{
			"section":     string(result.Section),
			"stance":      string(m.Topic.Stance),
			"rounds":      result.Rounds,
			"open_issues": result.OpenIssues,
			"cited_units": strings.Join(result.CitedUnits, ","),
			"signals":     strings.Join(agents, ","),
		},
	}); err != nil {
		p.logger.Error("section_rewrite event not recorded",
			logger.String("topic_id", result.TopicID),
			logger.String("section", string(result.Section)),
			logger.Error(err))
	}
}
