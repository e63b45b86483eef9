// Package topicmap decides which topics a content unit belongs to. One
// classification call nominates candidates from the topic catalog, then every
// candidate is validated in isolation and kept only when its relevance score
// clears the configured floor. The mapper never writes to the graph; the
// ingestion gate owns the commit.
package topicmap

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
)

// bodyLimit caps how much of a unit's body reaches a prompt.
const bodyLimit = 2000

// Mapping links one topic with the relevance the validator assigned.
type Mapping struct {
	TopicID string  `json:"topic_id"`
	Score   float64 `json:"score"`
}

// Proposal is a topic the classifier wanted that does not exist yet. Whether
// proposals become real topics is the caller's policy, not the mapper's.
type Proposal struct {
	Name       string `json:"name"`
	Motivation string `json:"motivation"`
}

// Result is the full outcome of mapping one unit.
type Result struct {
	Mappings   []Mapping
	Proposals  []Proposal
	Motivation string
}

// Mapper classifies content units against the topic catalog.
type Mapper struct {
	store  *graph.Store
	client llm.Client
	floor  float64
	logger logger.Logger
}

// New creates a mapper. floor is the relevance score a candidate must reach
// to survive validation.
func New(store *graph.Store, client llm.Client, floor float64, log logger.Logger) *Mapper {
	return &Mapper{store: store, client: client, floor: floor, logger: log}
}

type classifyResponse struct {
	Motivation string   `json:"motivation"`
	Existing   []string `json:"existing"`
	New        []string `json:"new"`
}

type validateResponse struct {
	Motivation string  `json:"motivation"`
	Relevance  float64 `json:"relevance"`
}

// Map classifies one unit and returns the validated topic links. LLM failures
// propagate to the caller unretried; a valid run with zero mappings is a real
// outcome, not an error.
func (m *Mapper) Map(ctx context.Context, unitID string) (*Result, error) {
	unit, err := m.store.GetUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("topicmap: %w", err)
	}
	topics, err := m.store.ListTopics(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("topicmap: %w", err)
	}

	candidates, result, err := m.classify(ctx, unit, topics)
	if err != nil {
		return nil, err
	}

	for _, topic := range candidates {
		score, err := m.validate(ctx, unit, topic)
		if err != nil {
			return nil, err
		}
		if score < m.floor {
			m.logger.Debug("candidate below relevance floor",
				logger.String("unit_id", unit.ID),
				logger.String("topic_id", topic.ID),
				logger.Float64("score", score))
			continue
		}
		result.Mappings = append(result.Mappings, Mapping{TopicID: topic.ID, Score: score})
	}

	sort.Slice(result.Mappings, func(i, j int) bool {
		if result.Mappings[i].Score != result.Mappings[j].Score {
			return result.Mappings[i].Score > result.Mappings[j].Score
		}
		return result.Mappings[i].TopicID < result.Mappings[j].TopicID
	})

	m.logger.Info("unit mapped",
		logger.String("unit_id", unit.ID),
		logger.Int("candidates", len(candidates)),
		logger.Int("mappings", len(result.Mappings)),
		logger.Int("proposals", len(result.Proposals)))
	return result, nil
}

func (m *Mapper) classify(ctx context.Context, unit *domain.ContentUnit, topics []*domain.Topic) ([]*domain.Topic, *Result, error) {
	byID := make(map[string]*domain.Topic, len(topics))
	catalog := make([]string, 0, len(topics))
	for _, t := range topics {
		byID[t.ID] = t
		catalog = append(catalog, fmt.Sprintf("- %s (id: %s, category: %s)", t.Name, t.ID, t.Category))
	}

	raw, err := m.client.Complete(ctx, llm.Request{
		System: llm.SystemMission,
		Prompt: fmt.Sprintf(classifyPrompt,
			strings.Join(catalog, "\n"),
			unit.Title,
			unit.Summary,
			llm.Truncate(unit.Body, bodyLimit)),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("topicmap: classify %s: %w", unit.ID, err)
	}

	var resp classifyResponse
	if err := llm.Unmarshal(raw, &resp); err != nil {
		return nil, nil, fmt.Errorf("topicmap: classify %s: %w", unit.ID, err)
	}

	result := &Result{Motivation: resp.Motivation}
	for _, name := range resp.New {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		result.Proposals = append(result.Proposals, Proposal{Name: name, Motivation: resp.Motivation})
	}

	seen := make(map[string]struct{}, len(resp.Existing))
	var candidates []*domain.Topic
	for _, id := range resp.Existing {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		topic, ok := byID[id]
		if !ok {
			m.logger.Warn("classifier nominated unknown topic",
				logger.String("unit_id", unit.ID),
				logger.String("topic_id", id))
			continue
		}
		candidates = append(candidates, topic)
	}
	return candidates, result, nil
}

func (m *Mapper) validate(ctx context.Context, unit *domain.ContentUnit, topic *domain.Topic) (float64, error) {
	raw, err := m.client.Complete(ctx, llm.Request{
		System: llm.SystemMission,
		Prompt: fmt.Sprintf(validatePrompt,
			topic.Name,
			topic.ID,
			topic.Category,
			unit.Title,
			unit.Summary,
			llm.Truncate(unit.Body, bodyLimit)),
	})
	if err != nil {
		return 0, fmt.Errorf("topicmap: validate %s against %s: %w", unit.ID, topic.ID, err)
	}

	var resp validateResponse
	if err := llm.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("topicmap: validate %s against %s: %w", unit.ID, topic.ID, err)
	}

	score := resp.Relevance
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

const classifyPrompt = `You map news content onto an existing topic catalog used for market analysis.

TASK:
- Nominate every catalog topic this content genuinely affects. Use topic ids, never names.
- Be generous with existing topics and conservative with new ones: propose a new topic name only
  when no catalog entry covers the core subject and the subject has a direct market impact channel.
- Output exactly one JSON object: {"motivation": string, "existing": [topic ids] or null, "new": [topic names] or null}.
- Return only the JSON object, no markdown or commentary.

TOPIC CATALOG:
%s

CONTENT:
Title: %s
Summary: %s
Body: %s`

const validatePrompt = `You judge whether one piece of content is genuinely relevant to one topic.

TOPIC: %s (id: %s, category: %s)

CONTENT:
Title: %s
Summary: %s
Body: %s

Score the relevance of this content to the topic on [0.0, 1.0]:
- 1.0: the content is squarely about the topic or moves it directly.
- 0.5: meaningful but indirect connection.
- 0.0: no real connection.

Output exactly one JSON object: {"motivation": string, "relevance": number}. No other text.`
