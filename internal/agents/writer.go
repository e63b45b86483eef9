package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
)

// Writer produces the section text. It only ever sees the assembled material
// and the signal guidance, so everything it can legally cite is in its prompt.
type Writer struct {
	client llm.Client
	logger logger.Logger
}

// NewWriter creates a writer over the given completion client.
func NewWriter(client llm.Client, log logger.Logger) *Writer {
	return &Writer{client: client, logger: log}
}

// Draft writes the first version of the section. An empty completion is a
// stage failure here; with no previous draft there is nothing to fall back to.
func (w *Writer) Draft(ctx context.Context, m *Material, signals []*Signal) (string, error) {
	text, err := w.write(ctx, m, signals, "")
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("agents: draft %s/%s: %w", m.Topic.ID, m.Section, llm.ErrEmptyCompletion)
	}
	return text, nil
}

// Rewrite reworks a draft against review feedback. It may return empty text;
// the pipeline keeps the previous draft in that case rather than failing the
// whole section run.
func (w *Writer) Rewrite(ctx context.Context, m *Material, signals []*Signal, previous, criticFeedback, sourceFeedback string) (string, error) {
	if criticFeedback == "" {
		criticFeedback = "none"
	}
	if sourceFeedback == "" {
		sourceFeedback = "none"
	}
	revision := fmt.Sprintf(revisionBlock, previous, criticFeedback, sourceFeedback)
	return w.write(ctx, m, signals, revision)
}

func (w *Writer) write(ctx context.Context, m *Material, signals []*Signal, revision string) (string, error) {
	raw, err := w.client.Complete(ctx, llm.Request{
		System: llm.SystemMission,
		Prompt: fmt.Sprintf(writerPrompt,
			m.Topic.Name, m.Topic.ID, m.Topic.Category,
			m.Section, m.Section.Focus(),
			stanceDirective(m.Topic.Stance),
			renderSignals(signals),
			m.Render(),
			m.Topic.Name,
			revision),
	})
	if err != nil {
		return "", fmt.Errorf("agents: write %s/%s: %w", m.Topic.ID, m.Section, err)
	}

	text := strings.TrimSpace(raw)
	w.logger.Debug("writer produced text",
		logger.String("topic_id", m.Topic.ID),
		logger.String("section", string(m.Section)),
		logger.Int("chars", len(text)),
		logger.Bool("rewrite", revision != ""))
	return text, nil
}

// stanceDirective translates the topic's stance flag into prompt language.
// It reaches every prompt-bearing stage through the shared templates.
func stanceDirective(s domain.Stance) string {
	if s == domain.StanceHasPosition {
		return "has_position: a live position exists on this topic; weigh the evidence for and against holding it, and name what would force an exit."
	}
	return "thesis_only: no position exists; build the thesis on the evidence and never invent entries, sizing or execution language."
}

const writerPrompt = `You write one section of the standing analysis for a topic in the knowledge graph.

TOPIC: %s (id: %s, category: %s)
SECTION: %s
FOCUS: %s
STANCE: %s

PRE-WRITING GUIDANCE (work every point in; earlier blocks win conflicts):
%s

MATERIAL:
%s

CITATION RULES, NON-NEGOTIABLE:
- Cite units inline as the 9-character id in parentheses, e.g. (Z7O1DCHS7), immediately after the claim it supports.
- Cite prior or related sections by their (sec_...) ref the same way.
- Use only ids and refs that appear in the material above. Never invent one.
- Stack multiple sources with no spaces: (AAA111AAA)(BBB222BBB).
- Inline only. No reference list or citation block at the end.

WRITE TO THIS STANDARD:
- Every substantive claim carries an inline citation.
- Exact numbers, levels and dates over vague quantifiers.
- When another force or asset appears, state its transmission path into %s in the same sentence.
- Project forward: what the evidence implies next and what would confirm or break it.
- No preamble, no filler. Output only the section text.
%s`

const revisionBlock = `
PREVIOUS DRAFT (rework it; keep what survived review):
%s

CRITIC FEEDBACK:
%s

SOURCE CHECKER FEEDBACK:
%s

Rewrite the full section text addressing every point of feedback.`
