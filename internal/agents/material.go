// Package agents runs the multi-stage writing pipeline that turns a topic's
// linked content units into section text: signal agents surface angles, the
// writer drafts, and a bounded critic/source-checker loop polishes the draft
// before the single write-back to the graph.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/llm"
)

// ErrNoMaterial is returned when a section has nothing to write from: no
// linked units for a unit-bearing section, no prior text for a prior-only one.
var ErrNoMaterial = errors.New("agents: no material for section")

const (
	// excerptLimit caps each unit field so one oversized unit cannot crowd
	// the rest of the evidence out of a prompt.
	excerptLimit = 2000
	// maxRelated caps how many related-topic excerpts reach a prompt.
	maxRelated = 5
)

// RelatedExcerpt is one neighbouring topic's best available section text,
// citable through its section ref.
type RelatedExcerpt struct {
	Topic   *domain.Topic
	Kind    domain.EdgeKind
	Section domain.Section
	Text    string
}

// Material is everything the agents are allowed to reason from for one
// section run. It is assembled once, read-only, and shared by every stage so
// the writer, critic and checker all argue over the same evidence.
type Material struct {
	Topic    *domain.Topic
	Section  domain.Section
	Units    []*domain.ContentUnit
	Prior    []*domain.SectionRecord
	Existing *domain.SectionRecord
	Related  []RelatedExcerpt
}

// BuildMaterial reads the topic's corner of the graph. Prior-only sections
// get no units; everything else gets the newest unitLimit linked units plus
// the dependency sections' current text and related-topic excerpts.
func BuildMaterial(ctx context.Context, store *graph.Store, topicID string, section domain.Section, unitLimit int) (*Material, error) {
	if !section.Valid() {
		return nil, fmt.Errorf("agents: unknown section %q", section)
	}

	topic, err := store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("agents: load topic %s: %w", topicID, err)
	}

	m := &Material{Topic: topic, Section: section}

	if !section.PriorOnly() {
		units, err := store.UnitsForTopic(ctx, topicID, unitLimit)
		if err != nil {
			return nil, fmt.Errorf("agents: load units for %s: %w", topicID, err)
		}
		m.Units = units
	}

	for _, dep := range section.Dependencies() {
		rec, err := store.GetSection(ctx, topicID, dep)
		if errors.Is(err, graph.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("agents: load section %s/%s: %w", topicID, dep, err)
		}
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		m.Prior = append(m.Prior, rec)
	}

	existing, err := store.GetSection(ctx, topicID, section)
	switch {
	case err == nil:
		m.Existing = existing
	case errors.Is(err, graph.ErrNotFound):
	default:
		return nil, fmt.Errorf("agents: load section %s/%s: %w", topicID, section, err)
	}

	related, err := relatedExcerpts(ctx, store, topicID)
	if err != nil {
		return nil, err
	}
	m.Related = related

	return m, nil
}

// Empty reports whether there is nothing to write from.
func (m *Material) Empty() bool {
	if m.Section.PriorOnly() {
		return len(m.Prior) == 0
	}
	return len(m.Units) == 0
}

// UnitIDs returns the identifiers the writer may cite in (ABC123DEF) form.
func (m *Material) UnitIDs() []string {
	ids := make([]string, 0, len(m.Units))
	for _, u := range m.Units {
		ids = append(ids, u.ID)
	}
	return ids
}

// SectionRefs returns the (sec_...) refs the writer may cite: the prior
// sections of this topic plus the related-topic excerpts on display.
func (m *Material) SectionRefs() []string {
	refs := make([]string, 0, len(m.Prior)+len(m.Related))
	for _, rec := range m.Prior {
		refs = append(refs, SectionRef(rec.TopicID, rec.Section))
	}
	for _, rel := range m.Related {
		refs = append(refs, SectionRef(rel.Topic.ID, rel.Section))
	}
	return refs
}

// Render formats the material as the evidence block shared by every prompt.
func (m *Material) Render() string {
	var b strings.Builder

	if len(m.Units) > 0 {
		b.WriteString("SOURCE UNITS (cite by id):\n")
		for _, u := range m.Units {
			fmt.Fprintf(&b, "\nUNIT (%s)\n", u.ID)
			fmt.Fprintf(&b, "Source: %s | Published: %s\n", u.Source, u.PublishedAt.UTC().Format("2006-01-02"))
			fmt.Fprintf(&b, "Title: %s\n", u.Title)
			if u.Summary != "" {
				fmt.Fprintf(&b, "Summary: %s\n", llm.Truncate(u.Summary, excerptLimit))
			}
			if u.Body != "" {
				fmt.Fprintf(&b, "%s\n", llm.Truncate(u.Body, excerptLimit))
			}
		}
	}

	if len(m.Prior) > 0 {
		b.WriteString("\nPRIOR SECTIONS OF THIS TOPIC (cite by ref):\n")
		for _, rec := range m.Prior {
			fmt.Fprintf(&b, "\n%s (%s)\n%s\n",
				strings.ToUpper(string(rec.Section)), SectionRef(rec.TopicID, rec.Section), rec.Text)
		}
	}

	if m.Existing != nil && strings.TrimSpace(m.Existing.Text) != "" {
		b.WriteString("\nCURRENT TEXT OF THIS SECTION (you are replacing it; keep what still holds):\n")
		b.WriteString(m.Existing.Text)
		b.WriteString("\n")
	}

	if len(m.Related) > 0 {
		b.WriteString("\nRELATED TOPICS (cite by ref):\n")
		for _, rel := range m.Related {
			fmt.Fprintf(&b, "\n%s [%s] (%s)\n%s\n",
				rel.Topic.Name, rel.Kind, SectionRef(rel.Topic.ID, rel.Section),
				llm.Truncate(rel.Text, excerptLimit))
		}
	}

	return b.String()
}

// SectionRef builds the citable ref for one topic section. The format has to
// stay inside the citation grammar or the checker would reject its own refs.
func SectionRef(topicID string, section domain.Section) string {
	return fmt.Sprintf("sec_%s_%s", topicID, section)
}

// relatedExcerpts walks topic-to-topic edges and pulls each neighbour's most
// representative section text. Hidden neighbours and neighbours with no text
// are skipped.
func relatedExcerpts(ctx context.Context, store *graph.Store, topicID string) ([]RelatedExcerpt, error) {
	edges, err := store.ListTopicEdges(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("agents: load edges for %s: %w", topicID, err)
	}

	var out []RelatedExcerpt
	for _, e := range edges {
		if e.Kind == domain.EdgeAbout {
			continue
		}
		otherID := e.DstID
		if otherID == topicID {
			otherID = e.SrcID
		}

		other, err := store.GetTopic(ctx, otherID)
		if errors.Is(err, graph.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("agents: load related topic %s: %w", otherID, err)
		}
		if other.Status == domain.TopicHidden {
			continue
		}

		section, text, ok, err := bestSection(ctx, store, otherID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		out = append(out, RelatedExcerpt{Topic: other, Kind: e.Kind, Section: section, Text: text})
		if len(out) == maxRelated {
			break
		}
	}
	return out, nil
}

// bestSection picks the neighbour excerpt shown in prompts: the executive
// summary when written, otherwise the first non-empty section in order.
func bestSection(ctx context.Context, store *graph.Store, topicID string) (domain.Section, string, bool, error) {
	recs, err := store.ListSections(ctx, topicID)
	if err != nil {
		return "", "", false, fmt.Errorf("agents: load sections for %s: %w", topicID, err)
	}

	byName := make(map[domain.Section]string, len(recs))
	for _, rec := range recs {
		if strings.TrimSpace(rec.Text) != "" {
			byName[rec.Section] = rec.Text
		}
	}
	if text, ok := byName[domain.SectionExecutiveSummary]; ok {
		return domain.SectionExecutiveSummary, text, true, nil
	}
	for _, section := range domain.Sections() {
		if text, ok := byName[section]; ok {
			return section, text, true, nil
		}
	}
	return "", "", false, nil
}
