package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EventType tags a tracker event. Events are partitioned on disk by type.
type EventType string

const (
	EventAddUnit           EventType = "add_unit"
	EventAddTopic          EventType = "add_topic"
	EventAddEdge           EventType = "add_edge"
	EventRemoveEdge        EventType = "remove_edge"
	EventSectionRewrite    EventType = "section_rewrite"
	EventShouldRewriteTrue EventType = "should_rewrite_true"
	EventShouldRewriteNo   EventType = "should_rewrite_false"
	EventSyncRun           EventType = "sync_run"
)

var eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// TrackerEvent is an immutable record of one pipeline decision. Only the
// Reviewed flag is ever changed after the record is written.
type TrackerEvent struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Component string            `json:"component"`
	Action    string            `json:"action"`
	IDs       map[string]string `json:"ids"`
	Details   map[string]any    `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Reviewed  bool              `json:"reviewed"`
}

// Validate enforces the fail-fast rules: a tracker event is only writable
// with a well-formed type, a named component and action, and a non-empty set
// of syntactically valid reference identifiers. Reference maps carry ids
// only, never whole objects.
func (e *TrackerEvent) Validate() error {
	if e.Type == "" || !eventTypePattern.MatchString(string(e.Type)) {
		return fmt.Errorf("tracker event: malformed type %q", e.Type)
	}
	if e.Component == "" {
		return fmt.Errorf("tracker event %s: component is required", e.Type)
	}
	if e.Action == "" {
		return fmt.Errorf("tracker event %s: action is required", e.Type)
	}
	if len(e.IDs) == 0 {
		return fmt.Errorf("tracker event %s: at least one reference id is required", e.Type)
	}
	for key, val := range e.IDs {
		if key == "" {
			return fmt.Errorf("tracker event %s: empty id key", e.Type)
		}
		if val == "" {
			return fmt.Errorf("tracker event %s: empty value for id %q", e.Type, key)
		}
		if strings.HasSuffix(key, "unit_id") && !IsUnitID(val) {
			return fmt.Errorf("tracker event %s: %q is not a unit id (%s)", e.Type, val, key)
		}
		if strings.HasSuffix(key, "topic_id") && !IsTopicID(val) {
			return fmt.Errorf("tracker event %s: %q is not a topic id (%s)", e.Type, val, key)
		}
	}
	return nil
}
