package domain

import "time"

// Level places a topic in the two-tier hierarchy.
type Level string

const (
	// LevelMain is a top-level subject with full analysis coverage.
	LevelMain Level = "main"
	// LevelDriver is a subordinate force feeding one or more main topics.
	LevelDriver Level = "driver"
)

// TopicStatus is a topic's operational visibility.
type TopicStatus string

const (
	TopicActive TopicStatus = "active"
	TopicHidden TopicStatus = "hidden"
)

// Stance is the analysis mode flag threaded into every prompt-bearing stage.
// A has_position topic permits position-aware framing; thesis_only forbids
// any invented entries, sizing or execution language.
type Stance string

const (
	StanceThesisOnly  Stance = "thesis_only"
	StanceHasPosition Stance = "has_position"
)

// Topic is a subject node carrying multi-section narrative analysis.
type Topic struct {
	ID           string      `db:"id"            json:"id"`
	Name         string      `db:"name"          json:"name"`
	Category     string      `db:"category"      json:"category"`
	Level        Level       `db:"level"         json:"level"`
	ParentID     string      `db:"parent_id"     json:"parent_id,omitempty"`
	Status       TopicStatus `db:"status"        json:"status"`
	Stance       Stance      `db:"stance"        json:"stance"`
	LastUpdated  time.Time   `db:"last_updated"  json:"last_updated"`
	LastAnalyzed *time.Time  `db:"last_analyzed" json:"last_analyzed,omitempty"`
	CreatedAt    time.Time   `db:"created_at"    json:"created_at"`
}

// Section names one analysis text field on a topic.
type Section string

const (
	SectionFundamental      Section = "fundamental"
	SectionCurrent          Section = "current"
	SectionDrivers          Section = "drivers"
	SectionOutlook          Section = "outlook"
	SectionRisks            Section = "risks"
	SectionExecutiveSummary Section = "executive_summary"
)

// sectionOrder fixes both the rewrite order and the dependency direction:
// a section may read the text of any section before it.
var sectionOrder = []Section{
	SectionFundamental,
	SectionCurrent,
	SectionDrivers,
	SectionOutlook,
	SectionRisks,
	SectionExecutiveSummary,
}

var sectionFocus = map[Section]string{
	SectionFundamental:      "long-horizon structural forces: supply, demand, policy regime, secular positioning",
	SectionCurrent:          "what changed recently and why it matters now; connect fresh material to the standing thesis",
	SectionDrivers:          "the causal chains moving this topic: name each driver, its direction and its transmission path",
	SectionOutlook:          "the forward view over the next quarters: scenarios, markers to watch, what would confirm or break them",
	SectionRisks:            "what could go wrong: disconfirming evidence, crowded assumptions, fragile links in the causal story",
	SectionExecutiveSummary: "a tight synthesis of all sections for a reader with thirty seconds",
}

// Sections returns every section in fixed rewrite order.
func Sections() []Section {
	out := make([]Section, len(sectionOrder))
	copy(out, sectionOrder)
	return out
}

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	_, ok := sectionFocus[s]
	return ok
}

// Focus returns the section's writing focus, threaded into prompts.
func (s Section) Focus() string {
	return sectionFocus[s]
}

// PriorOnly reports whether the section is written from the other sections'
// text alone, with no raw unit material.
func (s Section) PriorOnly() bool {
	return s == SectionExecutiveSummary
}

// Dependencies returns the sections whose current text is supplied as prior
// material when s is rewritten.
func (s Section) Dependencies() []Section {
	var deps []Section
	for _, candidate := range sectionOrder {
		if candidate == s {
			break
		}
		deps = append(deps, candidate)
	}
	return deps
}

// SectionRecord is one section's stored text plus generation metadata.
type SectionRecord struct {
	TopicID     string    `db:"topic_id"     json:"topic_id"`
	Section     Section   `db:"section"      json:"section"`
	Text        string    `db:"text"         json:"text"`
	RewrittenAt time.Time `db:"rewritten_at" json:"rewritten_at"`
	Rounds      int       `db:"rounds"       json:"rounds"`
	OpenIssues  int       `db:"open_issues"  json:"open_issues"`
}
