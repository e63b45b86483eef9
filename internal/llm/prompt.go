package llm

import "unicode/utf8"

// SystemMission is the shared preamble every analysis prompt opens with. It
// sets the register the models answer in; component prompts add their own
// task-specific instructions on top.
const SystemMission = `You are the analysis engine behind a shared knowledge graph for institutional market research.
Operating standard, no exceptions:
- Truth over verbosity: every substantive claim rests on the supplied evidence or explicit assumptions.
- Always market-mapped: tie each view to concrete instruments, levels, or transmission paths.
- Concise, decisive, defensible: written for professional analysts, not a general audience.`

// Truncate caps s at n bytes, appending an ellipsis marker when it cuts.
// Prompt material is capped so a single oversized unit cannot crowd out the
// rest of the evidence.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	// Never cut inside a multi-byte rune.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
