package sync

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how much of the replicas a run looks at.
type Mode string

const (
	// ModeDryRun computes and reports the full diff without writing anything.
	ModeDryRun Mode = "dry_run"
	// ModeFull reconciles every entity on both replicas.
	ModeFull Mode = "full"
	// ModeCatchUp restricts the candidate set to entities changed since the
	// last successful run.
	ModeCatchUp Mode = "catch_up"
)

// EntityFilter restricts a run to one entity family.
type EntityFilter string

const (
	// EntitiesAll reconciles topics, sections, units and edges.
	EntitiesAll EntityFilter = "all"
	// EntitiesUnitsOnly reconciles content units only.
	EntitiesUnitsOnly EntityFilter = "units_only"
	// EntitiesGraphOnly reconciles topics, sections and edges only.
	EntitiesGraphOnly EntityFilter = "graph_only"
)

// Entity classes reported per run.
const (
	ClassTopic = "topic"
	ClassUnit  = "unit"
	ClassEdge  = "edge"
)

// ClassCounts tallies one entity class across a run.
type ClassCounts struct {
	Uploaded    int `json:"uploaded"`
	Downloaded  int `json:"downloaded"`
	Overwritten int `json:"overwritten"`
	Unchanged   int `json:"unchanged"`
	Failed      int `json:"failed"`
}

// Failure is one skipped entity.
type Failure struct {
	Class string `json:"class"`
	ID    string `json:"id"`
	Err   string `json:"error"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	Mode      Mode                    `json:"mode"`
	Entities  EntityFilter            `json:"entities"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
	Classes   map[string]*ClassCounts `json:"classes"`
	Failures  []Failure               `json:"failures,omitempty"`
}

func newReport(mode Mode, entities EntityFilter) *Report {
	return &Report{
		Mode:      mode,
		Entities:  entities,
		StartedAt: time.Now().UTC(),
		Classes: map[string]*ClassCounts{
			ClassTopic: {},
			ClassUnit:  {},
			ClassEdge:  {},
		},
	}
}

func (r *Report) fail(class, id string, err error) {
	r.Classes[class].Failed++
	r.Failures = append(r.Failures, Failure{Class: class, ID: id, Err: err.Error()})
}

// Failed returns the number of entities skipped due to per-entity errors.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Classes {
		n += c.Failed
	}
	return n
}

// Moved returns the number of entities written on either replica.
func (r *Report) Moved() int {
	n := 0
	for _, c := range r.Classes {
		n += c.Uploaded + c.Downloaded + c.Overwritten
	}
	return n
}

// String renders the run summary the sync CLI prints.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sync %s (%s) in %s\n", r.Mode, r.Entities, r.Duration.Round(time.Millisecond))
	for _, class := range []string{ClassTopic, ClassUnit, ClassEdge} {
		c := r.Classes[class]
		fmt.Fprintf(&b, "  %-6s uploaded=%d downloaded=%d overwritten=%d unchanged=%d failed=%d\n",
			class, c.Uploaded, c.Downloaded, c.Overwritten, c.Unchanged, c.Failed)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  FAILED %s %s: %s\n", f.Class, f.ID, f.Err)
	}
	return b.String()
}
