package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/analyst/internal/citations"
	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
)

// CheckResult is the source checker's verdict: the deterministic citation
// report plus, when the citations hold, the LLM's claim-traceability review.
type CheckResult struct {
	Approved  bool
	Issues    []string
	Feedback  string
	Citations *citations.Report
}

// IssueCount returns the number of distinct problems the checker raised.
func (r *CheckResult) IssueCount() int { return len(r.Issues) }

// SourceChecker verifies a draft against its material in two passes: first
// the deterministic citation-id validation, then an LLM pass tracing numeric
// claims back to the cited units. A draft with a fabricated id never reaches
// the LLM pass.
type SourceChecker struct {
	client llm.Client
	logger logger.Logger
}

// NewSourceChecker creates a checker over the given completion client.
func NewSourceChecker(client llm.Client, log logger.Logger) *SourceChecker {
	return &SourceChecker{client: client, logger: log}
}

// Check validates the draft's citations and claims. criticFeedback is passed
// through to the LLM pass for context; it does not influence the
// deterministic pass.
func (sc *SourceChecker) Check(ctx context.Context, m *Material, draft, criticFeedback string) (*CheckResult, error) {
	report := citations.Validate(draft, m.UnitIDs(), m.SectionRefs())
	if !report.Valid() {
		result := &CheckResult{Feedback: report.RetryInstructions(), Citations: report}
		for _, id := range report.InvalidUnitIDs {
			result.Issues = append(result.Issues, fmt.Sprintf("cites unknown unit id (%s)", id))
		}
		for _, ref := range report.InvalidSectionRefs {
			result.Issues = append(result.Issues, fmt.Sprintf("cites unknown section ref (%s)", ref))
		}
		sc.logger.Warn("draft cites unknown identifiers",
			logger.String("topic_id", m.Topic.ID),
			logger.String("section", string(m.Section)),
			logger.Strings("unit_ids", report.InvalidUnitIDs),
			logger.Strings("section_refs", report.InvalidSectionRefs))
		return result, nil
	}

	if criticFeedback == "" {
		criticFeedback = "none"
	}
	raw, err := sc.client.Complete(ctx, llm.Request{
		System: llm.SystemMission,
		Prompt: fmt.Sprintf(checkerPrompt,
			m.Topic.Name, m.Topic.ID,
			m.Section,
			stanceDirective(m.Topic.Stance),
			llm.Truncate(m.Render(), reviewMaterialLimit),
			criticFeedback,
			draft),
	})
	if err != nil {
		return nil, fmt.Errorf("agents: source check %s/%s: %w", m.Topic.ID, m.Section, err)
	}

	var resp reviewResponse
	if err := llm.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("agents: source check %s/%s: %w", m.Topic.ID, m.Section, err)
	}

	result := &CheckResult{
		Issues:    trimAll(resp.Issues),
		Feedback:  strings.TrimSpace(resp.Feedback),
		Citations: report,
	}
	result.Approved = resp.Approved && len(result.Issues) == 0

	sc.logger.Debug("source checker reviewed draft",
		logger.String("topic_id", m.Topic.ID),
		logger.String("section", string(m.Section)),
		logger.Bool("approved", result.Approved),
		logger.Int("issues", result.IssueCount()),
		logger.Int("cited_units", len(report.UnitIDs)))
	return result, nil
}

const checkerPrompt = `You verify one analysis draft against its source material. Citation ids have already been validated; your job is whether the cited sources actually carry the claims.

TOPIC: %s (id: %s)
SECTION: %s
STANCE: %s

MATERIAL (abridged):
%s

CRITIC FEEDBACK (context only):
%s

DRAFT:
%s

CHECK EACH:
- Numbers, levels and dates in the draft appear in, or follow arithmetically from, the cited material.
- Each citation sits next to a claim that unit actually supports.
- No claim attributes to a source something it does not say.

Output exactly one JSON object:
{"approved": bool, "issues": [one string per untraceable claim], "feedback": string with concrete fixes}
An empty issues list means every claim traces. Return only the JSON object.`
