// Package qa audits the provenance stream. Each run picks one random
// unreviewed tracker event, reconstructs the referenced objects from the
// graph, asks an LLM whether the recorded decision holds up, and on a fail
// writes a markdown report and bumps the daily failure counter. The event is
// marked reviewed either way, so the stream drains even when everything
// passes.
package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jonesrussell/analyst/internal/config"
	"github.com/jonesrussell/analyst/internal/domain"
	"github.com/jonesrussell/analyst/internal/graph"
	"github.com/jonesrussell/analyst/internal/llm"
	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/metrics"
	"github.com/jonesrussell/analyst/internal/tracker"
)

// Verdicts. Anything else from the model is coerced to fail.
const (
	VerdictPass = "pass"
	VerdictFail = "fail"
)

// stateExcerptLimit caps each reconstructed object's text in the prompt.
const stateExcerptLimit = 2000

// Judgment is the outcome of one audit.
type Judgment struct {
	Event          *domain.TrackerEvent
	Verdict        string
	Motivation     string
	Recommendation string
	ReportPath     string
}

// Auditor samples and judges tracker events. It runs beside the pipelines
// and never blocks them: its only shared surface is the tracker directory
// and read-only graph access.
type Auditor struct {
	store   *graph.Store
	events  *tracker.Store
	client  llm.Client
	cfg     config.QAConfig
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewAuditor wires an auditor. metrics may be nil.
func NewAuditor(store *graph.Store, events *tracker.Store, client llm.Client, cfg config.QAConfig, m *metrics.Metrics, log logger.Logger) *Auditor {
	return &Auditor{store: store, events: events, client: client, cfg: cfg, metrics: m, logger: log}
}

// AuditOne audits one random unreviewed event. Returns tracker.ErrNoEvents
// when the stream is drained. A judge failure leaves the event unreviewed so
// a later run can pick it up again.
func (a *Auditor) AuditOne(ctx context.Context) (*Judgment, error) {
	event, err := a.events.RandomUnreviewed()
	if err != nil {
		return nil, err
	}

	verdict, err := a.judge(ctx, event)
	if err != nil {
		return nil, err
	}

	// Consume the event before the fail path: a crash between the two loses
	// one report, never audits an event twice.
	if err := a.events.MarkReviewed(event.Type, event.ID); err != nil {
		return nil, err
	}

	j := &Judgment{
		Event:          event,
		Verdict:        verdict.Verdict,
		Motivation:     verdict.Motivation,
		Recommendation: verdict.Recommendation,
	}

	if j.Verdict == VerdictFail {
		path, err := a.writeReport(event, j)
		if err != nil {
			return nil, err
		}
		j.ReportPath = path

		if err := a.bumpDailyCounter(); err != nil {
			// The report is the durable artifact; the counter is telemetry.
			a.logger.Error("daily failure counter not updated", logger.Error(err))
		}
	}

	a.metrics.RecordAudit(j.Verdict)
	a.logger.Info("event audited",
		logger.String("event_type", string(event.Type)),
		logger.String("event_id", event.ID),
		logger.String("verdict", j.Verdict),
		logger.String("report", j.ReportPath))
	return j, nil
}

type judgeResponse struct {
	Verdict        string `json:"verdict"`
	Motivation     string `json:"motivation"`
	Recommendation string `json:"recommendation"`
}

func (a *Auditor) judge(ctx context.Context, event *domain.TrackerEvent) (*judgeResponse, error) {
	record, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("qa: marshal event %s: %w", event.ID, err)
	}

	raw, err := a.client.Complete(ctx, llm.Request{
		System: llm.SystemMission,
		Prompt: fmt.Sprintf(judgePrompt,
			event.Type,
			guideFor(event.Type),
			record,
			a.reconstruct(ctx, event.IDs)),
	})
	if err != nil {
		return nil, fmt.Errorf("qa: judge event %s: %w", event.ID, err)
	}

	var resp judgeResponse
	if err := llm.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("qa: judge event %s: %w", event.ID, err)
	}

	resp.Verdict = strings.ToLower(strings.TrimSpace(resp.Verdict))
	if resp.Verdict != VerdictPass && resp.Verdict != VerdictFail {
		// An unusable verdict is itself a fail worth a report.
		if resp.Motivation == "" {
			resp.Motivation = fmt.Sprintf("judge returned invalid verdict %q", resp.Verdict)
		}
		if resp.Recommendation == "" {
			resp.Recommendation = "fix the judge prompt or the response parser"
		}
		resp.Verdict = VerdictFail
	}
	return &resp, nil
}

// reconstruct loads the event's referenced objects in their current state.
// A missing object is reported in place, not treated as an error: for the
// judge, a dangling reference is evidence.
func (a *Auditor) reconstruct(ctx context.Context, ids map[string]string) string {
	keys := make([]string, 0, len(ids))
	for key := range ids {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		id := ids[key]
		switch {
		case strings.HasSuffix(key, "unit_id"):
			unit, err := a.store.GetUnit(ctx, id)
			if err != nil {
				fmt.Fprintf(&b, "%s %s: %v\n\n", key, id, err)
				continue
			}
			a.appendObject(&b, key, unit)
		case strings.HasSuffix(key, "topic_id"):
			topic, err := a.store.GetTopic(ctx, id)
			if err != nil {
				fmt.Fprintf(&b, "%s %s: %v\n\n", key, id, err)
				continue
			}
			a.appendObject(&b, key, topic)
			a.appendSections(ctx, &b, id)
		default:
			fmt.Fprintf(&b, "%s: %s\n\n", key, id)
		}
	}

	if b.Len() == 0 {
		return "no referenced objects could be loaded"
	}
	return b.String()
}

func (a *Auditor) appendObject(b *strings.Builder, label string, obj any) {
	raw, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "%s: marshal failed: %v\n\n", label, err)
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", label, raw)
}

func (a *Auditor) appendSections(ctx context.Context, b *strings.Builder, topicID string) {
	recs, err := a.store.ListSections(ctx, topicID)
	if err != nil {
		fmt.Fprintf(b, "sections of %s: %v\n\n", topicID, err)
		return
	}
	for _, rec := range recs {
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		fmt.Fprintf(b, "section %s/%s (rewritten %s, rounds %d, open issues %d):\n%s\n\n",
			topicID, rec.Section, rec.RewrittenAt.UTC().Format("2006-01-02 15:04"),
			rec.Rounds, rec.OpenIssues, llm.Truncate(rec.Text, stateExcerptLimit))
	}
}

// typeGuides gives the judge an explicit checklist per event type.
var typeGuides = map[domain.EventType]string{
	domain.EventAddUnit: `- The unit is market-relevant, not noise.
- The recorded topic links are each defensible from the unit's content.
- The motivation explains the mapping, not just restates it.
- The tier fits the content's weight.`,

	domain.EventAddTopic: `- The topic name is atomic and market-relevant, not a headline fragment.
- The category fits.
- The topic does not duplicate an existing catalog entry under another name.`,

	domain.EventSectionRewrite: `- The committed text matches the named section's remit.
- Cited identifiers exist on the referenced topic.
- Rounds and open-issue counts are coherent with the text's quality.
- The stance recorded on the event is respected by the text's framing.`,

	domain.EventShouldRewriteTrue: `- The recorded unit count and threshold actually imply a rewrite.
- The new unit ids listed belong to the topic.`,

	domain.EventShouldRewriteNo: `- The recorded reason (below threshold, no new units, cooldown, hidden) matches the recorded numbers.`,

	domain.EventSyncRun: `- The per-entity counters are internally coherent (nothing both uploaded and downloaded).
- Recorded failures carry enough detail to act on.`,
}

func guideFor(eventType domain.EventType) string {
	if guide, ok := typeGuides[eventType]; ok {
		return guide
	}
	return "- Judge the recorded decision on internal coherence and provenance completeness."
}

const judgePrompt = `You are the quality auditor for an automated market-analysis pipeline. Every graph mutation leaves a tracker event; you judge whether one recorded decision holds up.

EVENT TYPE: %s

CHECKLIST:
%s

EVENT RECORD:
%s

CURRENT STATE OF REFERENCED OBJECTS:
%s

Judge the decision, not the prose style. Point at concrete fields. If the referenced objects no longer support the recorded decision, that is a fail.

Output exactly one JSON object:
{"verdict": "pass" or "fail", "motivation": string, "recommendation": string}
Return only the JSON object, no markdown or commentary.`
