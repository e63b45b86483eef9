// Package citations extracts and validates the source identifiers cited in
// generated analysis text. Everything here is deterministic string work; the
// model never gets a vote on whether an id exists.
package citations

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// A unit citation is the bare 9-character id in parentheses, e.g.
	// (Z7O1DCHS7). The legacy unit_ prefix still appears in older drafts and
	// resolves to the same id.
	unitIDPattern  = regexp.MustCompile(`\(([A-Z0-9]{9})\)`)
	legacyPattern  = regexp.MustCompile(`\(unit_([A-Z0-9]{9})\)`)
	sectionPattern = regexp.MustCompile(`\((sec_[a-z0-9_]+)\)`)
)

// Report is the outcome of validating one piece of text. Slices are sorted
// and duplicate-free.
type Report struct {
	UnitIDs            []string
	SectionRefs        []string
	InvalidUnitIDs     []string
	InvalidSectionRefs []string
}

// Valid reports whether every citation resolved against the allowed sets.
func (r *Report) Valid() bool {
	return len(r.InvalidUnitIDs) == 0 && len(r.InvalidSectionRefs) == 0
}

// IssueCount returns the number of unresolved citations.
func (r *Report) IssueCount() int {
	return len(r.InvalidUnitIDs) + len(r.InvalidSectionRefs)
}

// RetryInstructions renders the correction block appended to the writer's
// rewrite prompt. Empty when the report is valid.
func (r *Report) RetryInstructions() string {
	if r.Valid() {
		return ""
	}

	var b strings.Builder
	b.WriteString("CITATION ERROR - the draft cites identifiers that do not exist in the source material.\n")
	if len(r.InvalidUnitIDs) > 0 {
		b.WriteString("\nInvalid unit ids:\n")
		for _, id := range r.InvalidUnitIDs {
			b.WriteString("  - (" + id + ") <- remove or replace\n")
		}
	}
	if len(r.InvalidSectionRefs) > 0 {
		b.WriteString("\nInvalid section refs:\n")
		for _, ref := range r.InvalidSectionRefs {
			b.WriteString("  - (" + ref + ") <- remove or replace\n")
		}
	}
	b.WriteString("\nRemove the claims built on these identifiers, or restate them citing only identifiers ")
	b.WriteString("that appear in the source material. Do not invent new ids.\n")
	return b.String()
}

// ExtractUnitIDs returns every content unit id cited in text.
func ExtractUnitIDs(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	for _, m := range unitIDPattern.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}
	for _, m := range legacyPattern.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}
	return sorted(seen)
}

// ExtractSectionRefs returns every sec_<topic>_<section> reference in text.
func ExtractSectionRefs(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	for _, m := range sectionPattern.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}
	return sorted(seen)
}

// Validate checks every citation in text against the allowed identifier
// sets. A nil allowed slice skips validation for that class; an empty
// non-nil slice means nothing of that class may be cited.
func Validate(text string, allowedUnitIDs, allowedSectionRefs []string) *Report {
	report := &Report{
		UnitIDs:     ExtractUnitIDs(text),
		SectionRefs: ExtractSectionRefs(text),
	}

	if allowedUnitIDs != nil {
		allowed := toSet(allowedUnitIDs)
		for _, id := range report.UnitIDs {
			if _, ok := allowed[id]; !ok {
				report.InvalidUnitIDs = append(report.InvalidUnitIDs, id)
			}
		}
	}
	if allowedSectionRefs != nil {
		allowed := toSet(allowedSectionRefs)
		for _, ref := range report.SectionRefs {
			if _, ok := allowed[ref]; !ok {
				report.InvalidSectionRefs = append(report.InvalidSectionRefs, ref)
			}
		}
	}
	return report
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sorted(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
