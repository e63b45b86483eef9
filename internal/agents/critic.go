package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
)

// reviewMaterialLimit caps the material echo in review prompts. Reviewers get
// the draft in full and the evidence abridged.
const reviewMaterialLimit = 2000

// Review is the critic's verdict on one draft.
type Review struct {
	Approved bool
	Issues   []string
	Feedback string
}

// IssueCount returns the number of distinct problems the critic raised.
func (r *Review) IssueCount() int { return len(r.Issues) }

// Critic reviews a draft for analytical quality: unsupported causal claims,
// vague quantification, drift from the section focus, framing that does not
// fit the topic's stance.
type Critic struct {
	client llm.Client
	logger logger.Logger
}

// NewCritic creates a critic over the given completion client.
func NewCritic(client llm.Client, log logger.Logger) *Critic {
	return &Critic{client: client, logger: log}
}

// Review judges one draft. A draft with any listed issue is never approved,
// whatever the verdict flag says.
func (c *Critic) Review(ctx context.Context, m *Material, draft string) (*Review, error) {
	raw, err := c.client.Complete(ctx, llm.Request{
		System: llm.SystemMission,
		Prompt: fmt.Sprintf(criticPrompt,
			m.Topic.Name, m.Topic.ID,
			m.Section, m.Section.Focus(),
			stanceDirective(m.Topic.Stance),
			llm.Truncate(m.Render(), reviewMaterialLimit),
			draft),
	})
	if err != nil {
		return nil, fmt.Errorf("agents: critic review %s/%s: %w", m.Topic.ID, m.Section, err)
	}

	var resp reviewResponse
	if err := llm.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("agents: critic review %s/%s: %w", m.Topic.ID, m.Section, err)
	}

	review := &Review{
		Issues:   trimAll(resp.Issues),
		Feedback: strings.TrimSpace(resp.Feedback),
	}
	review.Approved = resp.Approved && len(review.Issues) == 0

	c.logger.Debug("critic reviewed draft",
		logger.String("topic_id", m.Topic.ID),
		logger.String("section", string(m.Section)),
		logger.Bool("approved", review.Approved),
		logger.Int("issues", review.IssueCount()))
	return review, nil
}

type reviewResponse struct {
	Approved bool     `json:"approved"`
	Issues   []string `json:"issues"`
	Feedback string   `json:"feedback"`
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

const criticPrompt = `You review one section of standing topic analysis before it is committed. Approve only work you would sign.

TOPIC: %s (id: %s)
SECTION: %s
FOCUS: %s
STANCE: %s

CHECK FOR:
- Causal claims without an explicit transmission path.
- Vague quantifiers where the material offers exact numbers, levels or dates.
- Substantive claims with no inline citation.
- Filler: sentences that state the obvious or repeat the material without adding a view.
- Drift from the section focus, or framing that violates the stance directive above.
- Backward-looking summary with no forward view.

MATERIAL (abridged):
%s

DRAFT:
%s

Output exactly one JSON object:
{"approved": bool, "issues": [one string per distinct problem], "feedback": string with concrete edit instructions}
An empty issues list means the draft passes. Return only the JSON object.`
