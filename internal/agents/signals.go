package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
)

// Signal is one pre-writing agent's contribution: a handful of angles the
// writer must work in, grounded on specific units from the material.
type Signal struct {
	Agent      string   `json:"agent"`
	Headline   string   `json:"headline"`
	Points     []string `json:"points"`
	Evidence   []string `json:"evidence,omitempty"`
	Confidence float64  `json:"confidence"`
}

// SignalAgent surfaces one kind of angle before the writer starts.
// Implementations are pure: material in, signal out, no graph access.
type SignalAgent interface {
	Name() string
	Produce(ctx context.Context, m *Material) (*Signal, error)
}

// signalMissions is the full roster. Which agents run for which section is
// configuration; this table only defines what each one looks for.
var signalMissions = map[string]string{
	"depth": `Find depth the writer must build in:
- Causal chains worth making explicit, each as A -> mechanism -> B -> effect on the topic.
- Vague or unquantified claims in the material that the writer should pin to numbers, levels or dates.
Every point names the unit ids that support it.`,

	"synthesis": `Find combinations the writer must exploit:
- Pairs of units (or a unit plus a prior/related section) that together imply something neither says alone.
- State each combined implication for the topic directly, not as a question.
Every point names the unit ids (and refs) being combined.`,

	"contrarian": `Find where the material disagrees with itself or with the obvious read:
- First state the consensus view the material implies.
- Then give the strongest evidence-backed angles against it, each with its trigger condition.
Every point names the unit ids that carry the disagreement.`,

	"improvement": `Compare the current text of this section against the new units:
- Which standing insights still hold and must be preserved.
- Which claims the new units weaken, date or contradict, and what replaces them.
- Which thin areas the new units can finally deepen.
Every point names the unit ids that justify the change.`,
}

// signalAgent is the shared implementation: the four agents differ only in
// mission text.
type signalAgent struct {
	name    string
	mission string
	client  llm.Client
	logger  logger.Logger
}

// newSignalAgent builds a roster entry by name. Unknown names are a
// configuration error and surface before any LLM call is made.
func newSignalAgent(name string, client llm.Client, log logger.Logger) (SignalAgent, error) {
	mission, ok := signalMissions[name]
	if !ok {
		return nil, fmt.Errorf("agents: unknown signal agent %q", name)
	}
	return &signalAgent{name: name, mission: mission, client: client, logger: log}, nil
}

func (a *signalAgent) Name() string { return a.name }

func (a *signalAgent) Produce(ctx context.Context, m *Material) (*Signal, error) {
	raw, err := a.client.Complete(ctx, llm.Request{
		System: llm.SystemMission,
		Prompt: fmt.Sprintf(signalPrompt,
			a.name,
			m.Topic.Name, m.Topic.ID, m.Topic.Category,
			m.Section, m.Section.Focus(),
			stanceDirective(m.Topic.Stance),
			a.mission,
			m.Render()),
	})
	if err != nil {
		return nil, fmt.Errorf("agents: %s signal for %s/%s: %w", a.name, m.Topic.ID, m.Section, err)
	}

	var resp signalResponse
	if err := llm.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("agents: %s signal for %s/%s: %w", a.name, m.Topic.ID, m.Section, err)
	}

	signal := &Signal{
		Agent:      a.name,
		Headline:   strings.TrimSpace(resp.Headline),
		Confidence: clamp01(resp.Confidence),
	}
	for _, point := range resp.Points {
		if point = strings.TrimSpace(point); point != "" {
			signal.Points = append(signal.Points, point)
		}
	}

	known := make(map[string]struct{}, len(m.Units))
	for _, u := range m.Units {
		known[u.ID] = struct{}{}
	}
	for _, id := range resp.Evidence {
		id = strings.TrimSpace(id)
		if _, ok := known[id]; !ok {
			a.logger.Warn("signal agent cited an unknown unit",
				logger.String("agent", a.name),
				logger.String("topic_id", m.Topic.ID),
				logger.String("unit_id", id))
			continue
		}
		signal.Evidence = append(signal.Evidence, id)
	}

	return signal, nil
}

type signalResponse struct {
	Headline   string   `json:"headline"`
	Points     []string `json:"points"`
	Evidence   []string `json:"evidence"`
	Confidence float64  `json:"confidence"`
}

// renderSignals formats the collected signals as the guidance block in the
// writer's prompt. Roster order is precedence order: earlier agents' angles
// are listed first and win conflicts.
func renderSignals(signals []*Signal) string {
	if len(signals) == 0 {
		return "No pre-writing guidance. Work from the material alone."
	}
	var b strings.Builder
	for i, s := range signals {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (confidence %.2f): %s\n", strings.ToUpper(s.Agent), s.Confidence, s.Headline)
		for _, point := range s.Points {
			fmt.Fprintf(&b, "- %s\n", point)
		}
		if len(s.Evidence) > 0 {
			fmt.Fprintf(&b, "  evidence: %s\n", strings.Join(s.Evidence, ", "))
		}
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const signalPrompt = `You are the %s scout preparing guidance for an analysis writer.

TOPIC: %s (id: %s, category: %s)
SECTION: %s
FOCUS: %s
STANCE: %s

MISSION:
%s

MATERIAL:
%s

Output exactly one JSON object:
{"headline": string, "points": [up to 3 strings], "evidence": [unit ids from the material], "confidence": number in [0,1]}
Return only the JSON object, no markdown or commentary.`
